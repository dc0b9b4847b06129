package race_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/notify"
	"github.com/aarunya/kartapi/race"
)

// Concurrent admissions for the same day must serialize on the store's
// conditional write: exactly one wins, the rest see TrackOccupied.
func TestConcurrentAdmissions(t *testing.T) {
	const riders = 16

	store := race.NewMemStore()
	clock := newFakeClock()
	days := race.NewDayTable(time.UTC, nil, 1)
	engine := race.New(store, days, notify.New(), zap.NewNop(), race.WithNow(clock.Now))
	ctx := context.Background()

	ids := make([]int, riders)
	for i := 0; i < riders; i++ {
		reg := store.AddRegistration(models.Registration{
			RegistrationID: string(rune('A' + i)),
			FullName:       "Rider " + string(rune('A'+i)),
			Rounds:         3,
			IsPaid:         true,
			Status:         "PAID",
		})
		entry, err := engine.Enqueue(ctx, &reg, 1)
		if err != nil {
			t.Fatalf("enqueue rider %d: %v", i, err)
		}
		ids[i] = entry.ID
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		admitted   int
		occupied   int
		unexpected []error
	)
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(entryID int) {
			defer wg.Done()
			<-start
			_, err := engine.AdmitToTrack(ctx, entryID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, race.ErrTrackOccupied):
				occupied++
			default:
				unexpected = append(unexpected, err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors: %v", unexpected)
	}
	if admitted != 1 {
		t.Fatalf("admitted = %d, want exactly 1", admitted)
	}
	if occupied != riders-1 {
		t.Fatalf("occupied = %d, want %d", occupied, riders-1)
	}

	racing, err := store.EntriesByStatus(ctx, 1, models.StatusRacing)
	if err != nil {
		t.Fatalf("EntriesByStatus: %v", err)
	}
	if len(racing) != 1 {
		t.Fatalf("racing entries = %d, want 1", len(racing))
	}
}
