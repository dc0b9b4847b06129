// cmd/importreg/main.go
// Imports rider registrations from the event's legacy MySQL registration
// portal into the local PostgreSQL database, generating a QR wristband
// token for any rider that doesn't have one yet.
//
// Usage:
//
//	MYSQL_DSN="user:pass@tcp(host:3306)/regportal?parseTime=true" \
//	DB_PASS="pgpass" \
//	go run ./cmd/importreg
package main

import (
	"context"
	"database/sql"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/aarunya/kartapi/config"
	bundb "github.com/aarunya/kartapi/db"
	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/race"
)

const batchSize = 500

func main() {
	ctx := context.Background()

	cfg := config.Load()

	// --- MySQL ---
	if cfg.MySQLDSN == "" {
		log.Fatal("MYSQL_DSN required, e.g.: user:pass@tcp(host:3306)/regportal?parseTime=true")
	}
	myDB, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	defer myDB.Close()
	myDB.SetMaxOpenConns(4)
	if err := myDB.PingContext(ctx); err != nil {
		log.Fatalf("ping mysql: %v", err)
	}
	log.Println("connected to MySQL")

	// --- PostgreSQL ---
	pgDB := bundb.Setup(cfg)
	defer pgDB.Close()
	log.Println("connected to PostgreSQL")

	// Create tables (idempotent)
	if err := bundb.CreateTables(ctx, pgDB); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	n, err := importRegistrations(ctx, myDB, pgDB)
	if err != nil {
		log.Fatalf("import registrations: %v", err)
	}
	log.Printf("imported %d registrations", n)
}

func importRegistrations(ctx context.Context, myDB *sql.DB, pgDB *bun.DB) (int, error) {
	rows, err := myDB.QueryContext(ctx,
		`SELECT registration_id, full_name, enrollment_no,
		        COALESCE(college, ''), COALESCE(rounds, 1),
		        is_paid, COALESCE(status, ''), COALESCE(qr_token, '')
		 FROM registrations`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	total := 0
	batch := make([]models.Registration, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := pgDB.NewInsert().Model(&batch).
			On("CONFLICT (registration_id) DO UPDATE").
			Set("full_name = EXCLUDED.full_name").
			Set("enrollment_no = EXCLUDED.enrollment_no").
			Set("college = EXCLUDED.college").
			Set("rounds = EXCLUDED.rounds").
			Set("is_paid = EXCLUDED.is_paid").
			Set("status = EXCLUDED.status").
			Exec(ctx)
		if err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(
			&reg.RegistrationID, &reg.FullName, &reg.EnrollmentNo,
			&reg.College, &reg.Rounds, &reg.IsPaid, &reg.Status, &reg.QRToken,
		); err != nil {
			return total, err
		}
		// The portal predates wristbands; mint a token when missing.
		if reg.QRToken == "" {
			reg.QRToken = race.QRTokenPrefix + strings.ToUpper(uuid.NewString())
		}
		batch = append(batch, reg)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	return total, flush()
}
