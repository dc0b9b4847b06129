package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/aarunya/kartapi/config"
	"github.com/aarunya/kartapi/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(cfg *config.Config) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	return db
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Registration)(nil),
		(*models.RaceEntry)(nil),
		(*models.Lap)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	constraints := []string{
		// One entry per rider per event day. The engine checks this too;
		// the constraint closes races between operator stations.
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'race_entries_one_per_day') THEN ALTER TABLE race_entries ADD CONSTRAINT race_entries_one_per_day UNIQUE (registration_id, day); END IF; END $$`,
		`DO $$ BEGIN IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'laps_positive_time') THEN ALTER TABLE laps ADD CONSTRAINT laps_positive_time CHECK (lap_time_ms > 0); END IF; END $$`,
		// One racing entry per day. ClaimTrack's conditional update checks
		// this too, but under READ COMMITTED two concurrent claims can both
		// pass the NOT EXISTS subquery; the index makes the loser fail.
		`CREATE UNIQUE INDEX IF NOT EXISTS race_entries_one_racing_per_day ON race_entries (day) WHERE race_status = 'racing'`,
	}
	for _, stmt := range constraints {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Printf("constraint: %v", err)
		}
	}

	return nil
}
