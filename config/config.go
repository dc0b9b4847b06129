// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// Store backend: "postgres" or "memory" (dev/demo only).
	Store string

	// JWT signing secret (required in production).
	JWTSecret string

	// Event schedule: calendar dates mapped to event day numbers,
	// resolved in the event timezone. Dates outside the schedule fall
	// back to DefaultDay.
	EventTZ    string
	EventDays  map[string]int
	DefaultDay int

	// Server
	Debug      bool
	Port       string
	TLSDomains []string

	// MySQL – used only by cmd/importreg.
	MySQLDSN string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	v := newViper()

	// Defaults
	v.SetDefault("DB_USER", "kartapi")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "kartrace")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("STORE", "postgres")
	v.SetDefault("PORT", ":9000")
	v.SetDefault("TLS_DOMAINS", "race.aarunya.app,www.race.aarunya.app")
	v.SetDefault("DEBUG", false)
	v.SetDefault("EVENT_TZ", "Asia/Kolkata")
	v.SetDefault("EVENT_DAYS", "2026-02-21:1,2026-02-22:2,2026-02-23:3,2026-02-24:4")
	v.SetDefault("DEFAULT_DAY", 4)

	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		DBUser:      v.GetString("DB_USER"),
		DBPass:      v.GetString("DB_PASS"),
		DBHost:      v.GetString("DB_HOST"),
		DBPort:      v.GetString("DB_PORT"),
		DBName:      v.GetString("DB_NAME"),
		DBSSLMode:   v.GetString("DB_SSLMODE"),
		Store:       strings.ToLower(v.GetString("STORE")),
		JWTSecret:   v.GetString("JWT_SECRET"),
		EventTZ:     v.GetString("EVENT_TZ"),
		EventDays:   parseEventDays(v.GetString("EVENT_DAYS")),
		DefaultDay:  v.GetInt("DEFAULT_DAY"),
		Debug:       v.GetBool("DEBUG"),
		Port:        v.GetString("PORT"),
		TLSDomains:  splitTrimmed(v.GetString("TLS_DOMAINS")),
		MySQLDSN:    v.GetString("MYSQL_DSN"),
	}

	cfg.validate()
	return cfg
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

// EventLocation loads the event timezone, falling back to UTC.
func (c *Config) EventLocation() *time.Location {
	loc, err := time.LoadLocation(c.EventTZ)
	if err != nil {
		log.Printf("config: invalid EVENT_TZ %q, using UTC", c.EventTZ)
		return time.UTC
	}
	return loc
}

func (c *Config) validate() {
	if c.Store != "postgres" && c.Store != "memory" {
		log.Fatalf("config: STORE must be postgres or memory, got %q", c.Store)
	}
	if c.Store == "postgres" && c.DatabaseURL == "" && c.DBPass == "" {
		log.Fatal("config: DATABASE_URL or DB_PASS must be set")
	}
	if c.JWTSecret == "" {
		log.Fatal("config: JWT_SECRET must be set")
	}
	if c.DefaultDay < 1 {
		log.Fatal("config: DEFAULT_DAY must be >= 1")
	}
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

// parseEventDays parses "YYYY-MM-DD:n" pairs from a comma list.
func parseEventDays(s string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		date, num, ok := strings.Cut(pair, ":")
		if !ok {
			log.Fatalf("config: bad EVENT_DAYS entry %q, want YYYY-MM-DD:n", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n < 1 {
			log.Fatalf("config: bad day number in EVENT_DAYS entry %q", pair)
		}
		out[strings.TrimSpace(date)] = n
	}
	return out
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
