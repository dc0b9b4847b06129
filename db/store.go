package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/race"
)

// Store implements race.Store on bun/PostgreSQL.
type Store struct {
	db *bun.DB
}

// NewStore wraps a bun connection as a race.Store.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ race.Store = (*Store)(nil)

// notFound maps missing-row errors to the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", race.ErrNotFound, what)
	}
	return err
}

// pgUniqueViolation is the SQLSTATE code for unique_violation.
const pgUniqueViolation = "23505"

// sqlState is the error-field accessor pgdriver errors expose.
type sqlState interface {
	Field(byte) string
}

// uniqueViolation reports whether err is a unique-constraint violation
// on the named constraint or index.
func uniqueViolation(err error, name string) bool {
	var st sqlState
	if !errors.As(err, &st) {
		return false
	}
	return st.Field('C') == pgUniqueViolation && st.Field('n') == name
}

func (s *Store) RegistrationByID(ctx context.Context, id int) (*models.Registration, error) {
	reg := new(models.Registration)
	err := s.db.NewSelect().Model(reg).Where("rg.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("registration %d", id))
	}
	return reg, nil
}

func (s *Store) RegistrationByToken(ctx context.Context, token string) (*models.Registration, error) {
	reg := new(models.Registration)
	err := s.db.NewSelect().Model(reg).Where("rg.qr_token = ?", token).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "token")
	}
	return reg, nil
}

func (s *Store) RegistrationByCode(ctx context.Context, code string) (*models.Registration, error) {
	reg := new(models.Registration)
	err := s.db.NewSelect().Model(reg).Where("LOWER(rg.registration_id) = LOWER(?)", code).Scan(ctx)
	if err != nil {
		return nil, notFound(err, code)
	}
	return reg, nil
}

func (s *Store) RegistrationByEnrollment(ctx context.Context, no string) (*models.Registration, error) {
	reg := new(models.Registration)
	err := s.db.NewSelect().Model(reg).Where("LOWER(rg.enrollment_no) = LOWER(?)", no).Scan(ctx)
	if err != nil {
		return nil, notFound(err, no)
	}
	return reg, nil
}

func (s *Store) EntryByID(ctx context.Context, id int) (*models.RaceEntry, error) {
	entry := new(models.RaceEntry)
	err := s.db.NewSelect().Model(entry).Relation("Registration").Where("re.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("entry %d", id))
	}
	return entry, nil
}

func (s *Store) EntriesForRegistration(ctx context.Context, regID int) ([]models.RaceEntry, error) {
	var entries []models.RaceEntry
	err := s.db.NewSelect().Model(&entries).Relation("Registration").
		Where("re.registration_id = ?", regID).
		Scan(ctx)
	return entries, err
}

func (s *Store) EntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) ([]models.RaceEntry, error) {
	var entries []models.RaceEntry
	q := s.db.NewSelect().Model(&entries).Relation("Registration").
		Where("re.day = ?", day).
		OrderExpr("re.queued_at ASC, re.id ASC")
	if len(statuses) > 0 {
		q = q.Where("re.race_status IN (?)", bun.In(statuses))
	}
	err := q.Scan(ctx)
	return entries, err
}

func (s *Store) InsertEntry(ctx context.Context, e *models.RaceEntry) error {
	_, err := s.db.NewInsert().Model(e).Exec(ctx)
	// Two stations scanning the same rider race on the per-day unique
	// constraint; the loser sees the same conflict the sequential path
	// reports.
	if uniqueViolation(err, "race_entries_one_per_day") {
		return fmt.Errorf("%w: registration %d already has an entry for day %d",
			race.ErrAlreadyActive, e.RegistrationID, e.Day)
	}
	return err
}

func (s *Store) UpdateEntry(ctx context.Context, e *models.RaceEntry) error {
	res, err := s.db.NewUpdate().Model(e).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: entry %d", race.ErrNotFound, e.ID)
	}
	return nil
}

// ClaimTrack is the admission compare-and-set. The conditional update is
// the fast path; under READ COMMITTED two concurrent claims can both pass
// the NOT EXISTS subquery, so the one-racing-per-day partial unique index
// decides the race and the loser's violation maps to claimed=false.
func (s *Store) ClaimTrack(ctx context.Context, entryID, day int, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE race_entries SET race_status = 'racing', race_started_at = COALESCE(race_started_at, ?)
		 WHERE id = ? AND NOT EXISTS (
			SELECT 1 FROM race_entries other
			WHERE other.day = ? AND other.race_status = 'racing' AND other.id <> ?)`,
		startedAt, entryID, day, entryID,
	)
	if err != nil {
		if uniqueViolation(err, "race_entries_one_racing_per_day") {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteEntryWithLaps(ctx context.Context, id int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.Lap)(nil)).Where("entry_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*models.RaceEntry)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: entry %d", race.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) DeleteEntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) (int, error) {
	var removed int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM laps WHERE entry_id IN (
				SELECT id FROM race_entries WHERE day = ? AND race_status IN (?))`,
			day, bun.In(statuses),
		); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*models.RaceEntry)(nil)).
			Where("day = ?", day).
			Where("race_status IN (?)", bun.In(statuses)).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	return removed, err
}

func (s *Store) DeleteEverything(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*models.Lap)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*models.RaceEntry)(nil)).Where("TRUE").Exec(ctx)
		return err
	})
}

func (s *Store) LapByID(ctx context.Context, id int) (*models.Lap, error) {
	lap := new(models.Lap)
	err := s.db.NewSelect().Model(lap).Where("lp.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("lap %d", id))
	}
	return lap, nil
}

func (s *Store) LapsForEntry(ctx context.Context, entryID int) ([]models.Lap, error) {
	var laps []models.Lap
	err := s.db.NewSelect().Model(&laps).
		Where("lp.entry_id = ?", entryID).
		OrderExpr("lp.lap_number ASC").
		Scan(ctx)
	return laps, err
}

func (s *Store) RecentLaps(ctx context.Context, day, limit int) ([]models.Lap, error) {
	var laps []models.Lap
	err := s.db.NewSelect().Model(&laps).
		Where("lp.day = ?", day).
		Where("lp.valid").
		OrderExpr("lp.recorded_at DESC").
		Limit(limit).
		Scan(ctx)
	return laps, err
}

func (s *Store) ApplyLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(lap).Exec(ctx); err != nil {
			return err
		}
		return updateEntryTx(ctx, tx, entry)
	})
}

func (s *Store) ReviseLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(lap).WherePK().Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: lap %d", race.ErrNotFound, lap.ID)
		}
		return updateEntryTx(ctx, tx, entry)
	})
}

func updateEntryTx(ctx context.Context, tx bun.Tx, entry *models.RaceEntry) error {
	res, err := tx.NewUpdate().Model(entry).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: entry %d", race.ErrNotFound, entry.ID)
	}
	return nil
}
