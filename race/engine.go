// Package race is the session scheduler and lap-stat engine: who may
// occupy the track, how a rider's lifecycle advances, how lap times are
// recorded and corrected, and how derived stats stay consistent.
package race

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/notify"
)

// Engine drives the race lifecycle against a Store. All state lives in
// the store except the session clock, which is process-local and marks
// the start of the lap currently in progress.
type Engine struct {
	store Store
	days  *DayTable
	bus   *notify.Broker
	log   *zap.Logger
	now   func() time.Time

	mu         sync.Mutex
	lapStart   *time.Time
	clockEntry int
}

// New creates an Engine.
func New(store Store, days *DayTable, bus *notify.Broker, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		days:  days,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentDay returns the event day for the present wall-clock time.
func (e *Engine) CurrentDay() int {
	return e.days.DayFor(e.now())
}

// TotalDays returns the number of scheduled event days.
func (e *Engine) TotalDays() int {
	return e.days.TotalDays()
}

// storeErr passes domain sentinels through and wraps anything else as a
// transient store failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTrackOccupied) || errors.Is(err, ErrAlreadyActive) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (e *Engine) publishEntry(entry *models.RaceEntry) {
	e.bus.Publish(notify.Event{Table: notify.TableEntries, Day: entry.Day, EntryID: entry.ID})
}

func (e *Engine) publishLap(lap *models.Lap) {
	e.bus.Publish(notify.Event{Table: notify.TableLaps, Day: lap.Day, EntryID: lap.EntryID})
}

// Enqueue admits an eligible rider's entry to the day's queue, creating
// the entry on first scan or reviving a cancelled/disqualified one.
func (e *Engine) Enqueue(ctx context.Context, reg *models.Registration, day int) (*models.RaceEntry, error) {
	entries, err := e.store.EntriesForRegistration(ctx, reg.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	var existing *models.RaceEntry
	for i := range entries {
		en := &entries[i]
		if en.Day == day {
			existing = en
			continue
		}
		if en.RaceStatus.Active() || en.RaceStatus == models.StatusCompleted {
			return nil, fmt.Errorf("%w: %s has a %s entry on day %d",
				ErrCrossDayConflict, reg.FullName, en.RaceStatus, en.Day)
		}
	}

	if existing != nil {
		switch {
		case existing.RaceStatus.Active():
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyActive, reg.FullName, existing.RaceStatus)
		case existing.RaceStatus == models.StatusCompleted:
			return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, reg.FullName)
		}
		// Revive from cancelled / disqualified / not checked in.
		existing.RaceStatus = models.StatusQueued
		existing.QueuedAt = e.now()
		if err := e.store.UpdateEntry(ctx, existing); err != nil {
			return nil, storeErr(err)
		}
		existing.Registration = reg
		e.publishEntry(existing)
		e.log.Info("rider re-queued", zap.String("rider", reg.FullName), zap.Int("day", day))
		return existing, nil
	}

	entry := &models.RaceEntry{
		RegistrationID: reg.ID,
		Day:            day,
		RaceStatus:     models.StatusQueued,
		QueuedAt:       e.now(),
		Registration:   reg,
	}
	if err := e.store.InsertEntry(ctx, entry); err != nil {
		return nil, storeErr(err)
	}
	e.publishEntry(entry)
	e.log.Info("rider queued", zap.String("rider", reg.FullName), zap.Int("day", day))
	return entry, nil
}

// MarkReady moves a queued entry to ready.
func (e *Engine) MarkReady(ctx context.Context, entryID int) (*models.RaceEntry, error) {
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	if entry.RaceStatus != models.StatusQueued {
		return nil, fmt.Errorf("%w: cannot mark ready from %s", ErrInvalidTransition, entry.RaceStatus)
	}
	entry.RaceStatus = models.StatusReady
	if err := e.store.UpdateEntry(ctx, entry); err != nil {
		return nil, storeErr(err)
	}
	e.publishEntry(entry)
	return entry, nil
}

// Cancel withdraws a queued, ready or racing entry. If the entry holds
// the track, the session clock is released.
func (e *Engine) Cancel(ctx context.Context, entryID int) (*models.RaceEntry, error) {
	return e.endEntry(ctx, entryID, models.StatusCancelled)
}

// Disqualify marks a queued, ready or racing entry disqualified,
// releasing the session clock if it holds the track.
func (e *Engine) Disqualify(ctx context.Context, entryID int) (*models.RaceEntry, error) {
	return e.endEntry(ctx, entryID, models.StatusDisqualified)
}

func (e *Engine) endEntry(ctx context.Context, entryID int, to models.RaceStatus) (*models.RaceEntry, error) {
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !entry.RaceStatus.Active() {
		return nil, fmt.Errorf("%w: cannot move %s entry to %s", ErrInvalidTransition, entry.RaceStatus, to)
	}
	entry.RaceStatus = to
	if err := e.store.UpdateEntry(ctx, entry); err != nil {
		return nil, storeErr(err)
	}
	e.releaseClock(entryID)
	e.publishEntry(entry)
	e.log.Info("entry closed", zap.Int("entry", entryID), zap.String("status", string(to)))
	return entry, nil
}

// AdmitToTrack grants the entry exclusive track occupancy and starts the
// session clock. The occupancy check and the status write are a single
// conditional update in the store, so two concurrent admissions for one
// day cannot both succeed.
func (e *Engine) AdmitToTrack(ctx context.Context, entryID int) (*models.RaceEntry, error) {
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !entry.RaceStatus.Active() {
		return nil, fmt.Errorf("%w: cannot start a %s entry", ErrInvalidTransition, entry.RaceStatus)
	}

	claimed, err := e.store.ClaimTrack(ctx, entry.ID, entry.Day, e.now())
	if err != nil {
		return nil, storeErr(err)
	}
	if !claimed {
		if others, oerr := e.store.EntriesByStatus(ctx, entry.Day, models.StatusRacing); oerr == nil && len(others) > 0 && others[0].Registration != nil {
			return nil, fmt.Errorf("%w: %s must be stopped first", ErrTrackOccupied, others[0].Registration.FullName)
		}
		return nil, ErrTrackOccupied
	}

	entry, err = e.store.EntryByID(ctx, entry.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	e.mu.Lock()
	start := e.now()
	e.lapStart = &start
	e.clockEntry = entry.ID
	e.mu.Unlock()

	e.publishEntry(entry)
	e.log.Info("rider on track", zap.Int("entry", entry.ID), zap.Int("day", entry.Day))
	return entry, nil
}

// RecordLap stops the session clock, stamps the lap, recomputes stats
// over the valid set and completes the entry when the rider's lap quota
// is met. A non-final lap keeps the entry racing and immediately
// restarts the clock for the next lap.
func (e *Engine) RecordLap(ctx context.Context, entryID int) (*models.Lap, *models.RaceEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lapStart == nil || e.clockEntry != entryID {
		return nil, nil, fmt.Errorf("%w: no lap in progress for entry %d", ErrInvalidTransition, entryID)
	}

	now := e.now()
	lapTime := now.Sub(*e.lapStart).Milliseconds()
	if lapTime <= 0 {
		return nil, nil, fmt.Errorf("%w: %dms", ErrInvalidLapTime, lapTime)
	}

	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	if entry.RaceStatus != models.StatusRacing {
		return nil, nil, fmt.Errorf("%w: entry is %s, not racing", ErrInvalidTransition, entry.RaceStatus)
	}
	reg := entry.Registration
	if reg == nil {
		reg, err = e.store.RegistrationByID(ctx, entry.RegistrationID)
		if err != nil {
			return nil, nil, storeErr(err)
		}
	}

	laps, err := e.store.LapsForEntry(ctx, entryID)
	if err != nil {
		return nil, nil, storeErr(err)
	}
	valid := validLaps(laps)

	lap := &models.Lap{
		EntryID:    entryID,
		Day:        entry.Day,
		LapNumber:  len(valid) + 1,
		LapTimeMs:  lapTime,
		Valid:      true,
		RecordedAt: now,
	}
	applyStats(entry, append(valid, *lap))

	done := entry.RoundsCompleted >= reg.LapQuota()
	if done {
		entry.RaceStatus = models.StatusCompleted
		completedAt := now
		entry.RaceCompletedAt = &completedAt
	}

	if err := e.store.ApplyLap(ctx, lap, entry); err != nil {
		// Clock left running: nothing was applied, the operator can
		// retry the stop.
		return nil, nil, storeErr(err)
	}

	if done {
		e.lapStart = nil
		e.clockEntry = 0
	} else {
		restart := e.now()
		e.lapStart = &restart
	}

	e.publishLap(lap)
	e.publishEntry(entry)
	e.log.Info("lap recorded",
		zap.Int("entry", entryID),
		zap.Int("lap", lap.LapNumber),
		zap.Int64("ms", lap.LapTimeMs),
		zap.Bool("completed", done))
	return lap, entry, nil
}

// InvalidateLap soft-deletes a lap and recomputes the owning entry's
// stats over the remaining valid set. Race status is untouched: a lap
// of a completed entry may be invalidated to correct history without
// reopening the entry.
func (e *Engine) InvalidateLap(ctx context.Context, lapID int) (*models.Lap, error) {
	lap, err := e.store.LapByID(ctx, lapID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !lap.Valid {
		return lap, nil
	}
	lap.Valid = false
	return lap, e.reviseAndRecompute(ctx, lap)
}

// EditLapTime overwrites a lap's time in place and recomputes stats over
// the valid set. The lap's number and valid flag are untouched.
func (e *Engine) EditLapTime(ctx context.Context, lapID int, newMs int64) (*models.Lap, error) {
	if newMs <= 0 {
		return nil, fmt.Errorf("%w: %dms", ErrInvalidLapTime, newMs)
	}
	lap, err := e.store.LapByID(ctx, lapID)
	if err != nil {
		return nil, storeErr(err)
	}
	lap.LapTimeMs = newMs
	return lap, e.reviseAndRecompute(ctx, lap)
}

// ResetLastLap invalidates the highest-numbered currently-valid lap of
// the entry.
func (e *Engine) ResetLastLap(ctx context.Context, entryID int) (*models.Lap, error) {
	laps, err := e.store.LapsForEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	var last *models.Lap
	for i := range laps {
		if !laps[i].Valid {
			continue
		}
		if last == nil || laps[i].LapNumber > last.LapNumber {
			last = &laps[i]
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: entry %d has no valid lap to reset", ErrNotFound, entryID)
	}
	return e.InvalidateLap(ctx, last.ID)
}

func (e *Engine) reviseAndRecompute(ctx context.Context, lap *models.Lap) error {
	entry, err := e.store.EntryByID(ctx, lap.EntryID)
	if err != nil {
		return storeErr(err)
	}
	laps, err := e.store.LapsForEntry(ctx, lap.EntryID)
	if err != nil {
		return storeErr(err)
	}
	// The in-memory edit has not been persisted yet; fold it in.
	for i := range laps {
		if laps[i].ID == lap.ID {
			laps[i] = *lap
		}
	}
	applyStats(entry, validLaps(laps))
	if err := e.store.ReviseLap(ctx, lap, entry); err != nil {
		return storeErr(err)
	}
	e.publishLap(lap)
	e.publishEntry(entry)
	return nil
}

func validLaps(laps []models.Lap) []models.Lap {
	out := make([]models.Lap, 0, len(laps))
	for _, l := range laps {
		if l.Valid {
			out = append(out, l)
		}
	}
	return out
}

// applyStats recomputes rounds completed, best and average lap over the
// given valid set. An empty set clears best and average to no value.
func applyStats(entry *models.RaceEntry, valid []models.Lap) {
	entry.RoundsCompleted = len(valid)
	if len(valid) == 0 {
		entry.BestLapMs = nil
		entry.AverageLapMs = nil
		return
	}
	best := valid[0].LapTimeMs
	var sum int64
	for _, l := range valid {
		if l.LapTimeMs < best {
			best = l.LapTimeMs
		}
		sum += l.LapTimeMs
	}
	avg := int64(math.Round(float64(sum) / float64(len(valid))))
	entry.BestLapMs = &best
	entry.AverageLapMs = &avg
}

// releaseClock stops the session clock if it is bound to the entry.
func (e *Engine) releaseClock(entryID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clockEntry == entryID {
		e.lapStart = nil
		e.clockEntry = 0
	}
}

// ClockRunningFor reports whether a lap is in progress for the entry.
func (e *Engine) ClockRunningFor(entryID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lapStart != nil && e.clockEntry == entryID
}
