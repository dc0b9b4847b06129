package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/aarunya/kartapi/config"
	"github.com/aarunya/kartapi/db"
	"github.com/aarunya/kartapi/handlers"
	applog "github.com/aarunya/kartapi/logger"
	mw "github.com/aarunya/kartapi/middleware"
	"github.com/aarunya/kartapi/notify"
	"github.com/aarunya/kartapi/race"
)

//go:embed all:build/*
var embeddedFiles embed.FS

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	var (
		store race.Store
		bdb   *bun.DB
	)
	if cfg.Store == "memory" {
		logger.Warn("running on the in-memory store; all race data is lost on restart")
		store = race.NewMemStore()
	} else {
		bdb = db.Setup(cfg)
		defer bdb.Close()

		if err := db.CreateTables(context.Background(), bdb); err != nil {
			logger.Fatal("create tables failed", zap.Error(err))
		}
		store = db.NewStore(bdb)
	}

	days := race.NewDayTable(cfg.EventLocation(), cfg.EventDays, cfg.DefaultDay)
	bus := notify.New()
	defer bus.Close()
	engine := race.New(store, days, bus, logger)

	h := handlers.New(bdb, engine, bus, cfg.JWTKey())

	e := echo.New()
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"*", "Authorization"},
		AllowCredentials: true,
	}))

	// Public
	e.POST("/ctl/signin", h.Signin)
	e.GET("/public/day", h.Day)
	e.GET("/public/leaderboard", h.Leaderboard)
	e.GET("/public/stats", h.Stats)
	e.GET("/public/active", h.Active)
	e.GET("/public/laps/recent", h.RecentLaps)
	e.GET("/events/stream", h.Stream)

	// Operator console – require valid JWT in Authorization header
	ctl := e.Group("/ctl", mw.JWT(cfg.JWTKey()))
	ctl.POST("/scan", h.Scan)
	ctl.GET("/queue", h.Queue)
	ctl.POST("/ready/:id", h.MarkReady)
	ctl.GET("/select/:id", h.Select)
	ctl.POST("/start/:id", h.Start)
	ctl.POST("/stop/:id", h.Stop)
	ctl.POST("/cancel/:id", h.Cancel)
	ctl.POST("/disqualify/:id", h.Disqualify)
	ctl.GET("/laps/:id", h.Laps)
	ctl.POST("/laps/:lapID/invalidate", h.InvalidateLap)
	ctl.POST("/laps/:lapID/time", h.EditLapTime)
	ctl.POST("/reset-last/:id", h.ResetLastLap)
	ctl.POST("/force-complete/:id", h.ForceComplete)
	ctl.POST("/force-remove/:id", h.ForceRemove)
	ctl.POST("/clear-queue", h.ClearQueue)
	ctl.POST("/reset-all", h.ResetAll)
	ctl.POST("/password-hash", h.PasswordHash)

	// Strip the "build/" prefix so URLs work correctly
	subFS, err := fs.Sub(embeddedFiles, "build")
	if err != nil {
		logger.Fatal("open embedded build fs failed", zap.Error(err))
	}
	// Serve static files correctly using Echo's WrapHandler
	fileServer := http.FileServer(http.FS(subFS))
	e.GET("/*", func(c echo.Context) error {
		path := c.Request().URL.Path

		// If request is for a static file, serve it
		if strings.Contains(path, ".") { // Matches JS, CSS, images, etc.
			http.StripPrefix("/", fileServer).ServeHTTP(c.Response(), c.Request())
			return nil
		}
		// Otherwise, serve `index.html` for client-side routing (SPA fallback)
		indexFile, err := subFS.Open("index.html")

		if err != nil {
			return c.NoContent(http.StatusNotFound)
		}
		defer indexFile.Close()

		return c.Stream(http.StatusOK, "text/html", indexFile)
	})

	if cfg.Debug {
		logger.Info("starting server", zap.String("mode", "debug"), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	if err := s.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
		logger.Error("tls server exited", zap.Error(err))
		os.Exit(1)
	}
}
