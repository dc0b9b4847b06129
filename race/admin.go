package race

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/notify"
)

// Destructive override operations. Each takes a confirmed flag; the
// first, unconfirmed call fails with ErrNotConfirmed so callers can arm
// a confirmation window before executing.

// ForceComplete moves the entry straight to completed, bypassing the
// lap-count check, and releases the session clock if the entry holds it.
func (e *Engine) ForceComplete(ctx context.Context, entryID int, confirmed bool) (*models.RaceEntry, error) {
	if !confirmed {
		return nil, fmt.Errorf("%w: force-complete entry %d", ErrNotConfirmed, entryID)
	}
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := e.now()
	entry.RaceStatus = models.StatusCompleted
	entry.RaceCompletedAt = &now
	if err := e.store.UpdateEntry(ctx, entry); err != nil {
		return nil, storeErr(err)
	}
	e.releaseClock(entryID)
	e.publishEntry(entry)
	e.log.Warn("entry force-completed", zap.Int("entry", entryID))
	return entry, nil
}

// ForceRemove hard-deletes the entry and all its laps, releasing the
// session clock if the entry holds it.
func (e *Engine) ForceRemove(ctx context.Context, entryID int, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("%w: force-remove entry %d", ErrNotConfirmed, entryID)
	}
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return storeErr(err)
	}
	if err := e.store.DeleteEntryWithLaps(ctx, entryID); err != nil {
		return storeErr(err)
	}
	e.releaseClock(entryID)
	e.bus.Publish(notify.Event{Table: notify.TableEntries, Day: entry.Day, EntryID: entryID})
	e.bus.Publish(notify.Event{Table: notify.TableLaps, Day: entry.Day, EntryID: entryID})
	e.log.Warn("entry force-removed", zap.Int("entry", entryID), zap.Int("day", entry.Day))
	return nil
}

// ClearQueue hard-deletes the day's waiting entries (queued, ready, not
// checked in). Racing and completed entries are untouched.
func (e *Engine) ClearQueue(ctx context.Context, day int, confirmed bool) (int, error) {
	if !confirmed {
		return 0, fmt.Errorf("%w: clear queue for day %d", ErrNotConfirmed, day)
	}
	n, err := e.store.DeleteEntriesByStatus(ctx, day,
		models.StatusQueued, models.StatusReady, models.StatusNotCheckedIn)
	if err != nil {
		return 0, storeErr(err)
	}
	e.bus.Publish(notify.Event{Table: notify.TableEntries, Day: day})
	e.log.Warn("queue cleared", zap.Int("day", day), zap.Int("removed", n))
	return n, nil
}

// ResetAll wipes every lap and entry across all days and clears the
// session clock. Global and destructive: full-event reset between runs.
func (e *Engine) ResetAll(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("%w: reset all race data", ErrNotConfirmed)
	}
	if err := e.store.DeleteEverything(ctx); err != nil {
		return storeErr(err)
	}
	e.mu.Lock()
	e.lapStart = nil
	e.clockEntry = 0
	e.mu.Unlock()
	e.bus.Publish(notify.Event{Table: notify.TableLaps})
	e.bus.Publish(notify.Event{Table: notify.TableEntries})
	e.log.Warn("all race data reset")
	return nil
}
