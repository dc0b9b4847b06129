package race

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aarunya/kartapi/models"
)

// MemStore is an in-memory Store. It backs the engine tests and the
// STORE=memory dev mode; the admission compare-and-set runs under the
// store mutex, giving the same effectively-atomic claim the SQL
// implementation gets from its conditional update.
type MemStore struct {
	mu            sync.Mutex
	registrations map[int]models.Registration
	entries       map[int]models.RaceEntry
	laps          map[int]models.Lap
	nextEntryID   int
	nextLapID     int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		registrations: make(map[int]models.Registration),
		entries:       make(map[int]models.RaceEntry),
		laps:          make(map[int]models.Lap),
		nextEntryID:   1,
		nextLapID:     1,
	}
}

// AddRegistration seeds a registration, assigning an ID when missing.
func (m *MemStore) AddRegistration(reg models.Registration) models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg.ID == 0 {
		reg.ID = len(m.registrations) + 1
	}
	m.registrations[reg.ID] = reg
	return reg
}

func (m *MemStore) RegistrationByID(ctx context.Context, id int) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reg, nil
}

func (m *MemStore) findRegistration(match func(models.Registration) bool) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reg := range m.registrations {
		if match(reg) {
			out := reg
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) RegistrationByToken(ctx context.Context, token string) (*models.Registration, error) {
	return m.findRegistration(func(r models.Registration) bool { return r.QRToken == token })
}

func (m *MemStore) RegistrationByCode(ctx context.Context, code string) (*models.Registration, error) {
	return m.findRegistration(func(r models.Registration) bool {
		return strings.EqualFold(r.RegistrationID, code)
	})
}

func (m *MemStore) RegistrationByEnrollment(ctx context.Context, no string) (*models.Registration, error) {
	return m.findRegistration(func(r models.Registration) bool {
		return strings.EqualFold(r.EnrollmentNo, no)
	})
}

// withRegistration returns a copy of the entry with its registration
// relation populated, mirroring the SQL store's join.
func (m *MemStore) withRegistration(e models.RaceEntry) models.RaceEntry {
	if reg, ok := m.registrations[e.RegistrationID]; ok {
		e.Registration = &reg
	}
	return e
}

func (m *MemStore) EntryByID(ctx context.Context, id int) (*models.RaceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: entry %d", ErrNotFound, id)
	}
	out := m.withRegistration(e)
	return &out, nil
}

func (m *MemStore) EntriesForRegistration(ctx context.Context, regID int) ([]models.RaceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RaceEntry
	for _, e := range m.entries {
		if e.RegistrationID == regID {
			out = append(out, m.withRegistration(e))
		}
	}
	return out, nil
}

func (m *MemStore) EntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) ([]models.RaceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RaceEntry
	for _, e := range m.entries {
		if e.Day != day {
			continue
		}
		if len(statuses) == 0 {
			out = append(out, m.withRegistration(e))
			continue
		}
		for _, s := range statuses {
			if e.RaceStatus == s {
				out = append(out, m.withRegistration(e))
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) InsertEntry(ctx context.Context, e *models.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.entries {
		if other.RegistrationID == e.RegistrationID && other.Day == e.Day {
			return fmt.Errorf("duplicate entry for registration %d on day %d", e.RegistrationID, e.Day)
		}
	}
	e.ID = m.nextEntryID
	m.nextEntryID++
	stored := *e
	stored.Registration = nil
	m.entries[e.ID] = stored
	return nil
}

func (m *MemStore) UpdateEntry(ctx context.Context, e *models.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return fmt.Errorf("%w: entry %d", ErrNotFound, e.ID)
	}
	stored := *e
	stored.Registration = nil
	m.entries[e.ID] = stored
	return nil
}

func (m *MemStore) ClaimTrack(ctx context.Context, entryID, day int, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryID]
	if !ok {
		return false, fmt.Errorf("%w: entry %d", ErrNotFound, entryID)
	}
	for _, other := range m.entries {
		if other.Day == day && other.RaceStatus == models.StatusRacing && other.ID != entryID {
			return false, nil
		}
	}
	e.RaceStatus = models.StatusRacing
	if e.RaceStartedAt == nil {
		e.RaceStartedAt = &startedAt
	}
	m.entries[entryID] = e
	return true, nil
}

func (m *MemStore) DeleteEntryWithLaps(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return fmt.Errorf("%w: entry %d", ErrNotFound, id)
	}
	delete(m.entries, id)
	for lapID, l := range m.laps {
		if l.EntryID == id {
			delete(m.laps, lapID)
		}
	}
	return nil
}

func (m *MemStore) DeleteEntriesByStatus(ctx context.Context, day int, statuses ...models.RaceStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.Day != day {
			continue
		}
		for _, s := range statuses {
			if e.RaceStatus == s {
				delete(m.entries, id)
				for lapID, l := range m.laps {
					if l.EntryID == id {
						delete(m.laps, lapID)
					}
				}
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *MemStore) DeleteEverything(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.laps = make(map[int]models.Lap)
	m.entries = make(map[int]models.RaceEntry)
	return nil
}

func (m *MemStore) LapByID(ctx context.Context, id int) (*models.Lap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.laps[id]
	if !ok {
		return nil, fmt.Errorf("%w: lap %d", ErrNotFound, id)
	}
	return &l, nil
}

func (m *MemStore) LapsForEntry(ctx context.Context, entryID int) ([]models.Lap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lap
	for _, l := range m.laps {
		if l.EntryID == entryID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LapNumber < out[j].LapNumber })
	return out, nil
}

func (m *MemStore) RecentLaps(ctx context.Context, day, limit int) ([]models.Lap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lap
	for _, l := range m.laps {
		if l.Day == day && l.Valid {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ApplyLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; !ok {
		return fmt.Errorf("%w: entry %d", ErrNotFound, entry.ID)
	}
	lap.ID = m.nextLapID
	m.nextLapID++
	m.laps[lap.ID] = *lap
	stored := *entry
	stored.Registration = nil
	m.entries[entry.ID] = stored
	return nil
}

func (m *MemStore) ReviseLap(ctx context.Context, lap *models.Lap, entry *models.RaceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.laps[lap.ID]; !ok {
		return fmt.Errorf("%w: lap %d", ErrNotFound, lap.ID)
	}
	if _, ok := m.entries[entry.ID]; !ok {
		return fmt.Errorf("%w: entry %d", ErrNotFound, entry.ID)
	}
	m.laps[lap.ID] = *lap
	stored := *entry
	stored.Registration = nil
	m.entries[entry.ID] = stored
	return nil
}

var _ Store = (*MemStore)(nil)
