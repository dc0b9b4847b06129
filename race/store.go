package race

import (
	"context"
	"time"

	"github.com/aarunya/kartapi/models"
)

// Store is the persistence contract the engine runs against. The bun
// implementation lives in the db package; an in-memory implementation
// backs tests and the STORE=memory dev mode.
//
// Every method is a short request/response call; implementations must
// apply writes all-or-nothing and surface failures as errors wrapping
// ErrStoreUnavailable unless a more specific sentinel applies.
type Store interface {
	// Registrations (read-only).
	RegistrationByID(ctx context.Context, id int) (*models.Registration, error)
	RegistrationByToken(ctx context.Context, token string) (*models.Registration, error)
	RegistrationByCode(ctx context.Context, code string) (*models.Registration, error)
	RegistrationByEnrollment(ctx context.Context, no string) (*models.Registration, error)

	// Race entries. Reads populate the Registration relation.
	EntryByID(ctx context.Context, id int) (*models.RaceEntry, error)
	EntriesForRegistration(ctx context.Context, regID int) ([]models.RaceEntry, error)
	// EntriesByStatus returns the day's entries holding any of the given
	// statuses; with no statuses it returns all of the day's entries.
	EntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) ([]models.RaceEntry, error)
	InsertEntry(ctx context.Context, e *models.RaceEntry) error
	UpdateEntry(ctx context.Context, e *models.RaceEntry) error
	// DeleteEntryWithLaps removes the entry and its laps in one
	// transaction.
	DeleteEntryWithLaps(ctx context.Context, id int) error
	// DeleteEntriesByStatus removes matching entries and their laps in
	// one transaction, returning the number of entries removed.
	DeleteEntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) (int, error)
	// DeleteEverything wipes all laps then all entries across all days.
	DeleteEverything(ctx context.Context) error

	// ClaimTrack atomically moves the entry to racing, keeping any
	// existing race_started_at and otherwise stamping startedAt. The
	// write succeeds only while no other entry holds racing for the
	// day; claimed=false means the track is occupied.
	ClaimTrack(ctx context.Context, entryID, day int, startedAt time.Time) (claimed bool, err error)

	// Laps.
	LapByID(ctx context.Context, id int) (*models.Lap, error)
	LapsForEntry(ctx context.Context, entryID int) ([]models.Lap, error)
	RecentLaps(ctx context.Context, day, limit int) ([]models.Lap, error)
	// ApplyLap inserts the lap and writes the entry's recomputed stats
	// in one transaction.
	ApplyLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error
	// ReviseLap updates the lap row and the entry's recomputed stats in
	// one transaction.
	ReviseLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error
}
