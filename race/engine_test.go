package race_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/aarunya/kartapi/models"
	"github.com/aarunya/kartapi/notify"
	"github.com/aarunya/kartapi/race"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *race.MemStore
	clock  *fakeClock
	engine *race.Engine
}

func newFixture() *fixture {
	store := race.NewMemStore()
	clock := newFakeClock()
	days := race.NewDayTable(time.UTC, map[string]int{"2026-02-21": 1, "2026-02-22": 2}, 2)
	engine := race.New(store, days, notify.New(), zap.NewNop(), race.WithNow(clock.Now))
	return &fixture{store: store, clock: clock, engine: engine}
}

func (f *fixture) addRider(name, code string, rounds int) models.Registration {
	return f.store.AddRegistration(models.Registration{
		RegistrationID: code,
		QRToken:        race.QRTokenPrefix + code,
		FullName:       name,
		EnrollmentNo:   "EN-" + code,
		College:        "MITS",
		Rounds:         rounds,
		IsPaid:         true,
		Status:         "PAID",
	})
}

// runLap advances the clock and stops the lap in progress.
func (f *fixture) runLap(t *testing.T, entryID int, d time.Duration) (*models.Lap, *models.RaceEntry) {
	t.Helper()
	f.clock.Advance(d)
	lap, entry, err := f.engine.RecordLap(context.Background(), entryID)
	if err != nil {
		t.Fatalf("RecordLap: %v", err)
	}
	return lap, entry
}

func TestEligibilityGate(t *testing.T) {
	Convey("Given a registration store with paid and unpaid riders", t, func() {
		f := newFixture()
		paid := f.addRider("Asha Verma", "REG-001", 3)
		unpaid := f.store.AddRegistration(models.Registration{
			RegistrationID: "REG-002",
			QRToken:        race.QRTokenPrefix + "REG-002",
			FullName:       "Rohan Iyer",
			EnrollmentNo:   "EN-REG-002",
			Rounds:         1,
		})
		ctx := context.Background()

		Convey("A QR token resolves by exact token", func() {
			reg, err := f.engine.Lookup(ctx, paid.QRToken)
			So(err, ShouldBeNil)
			So(reg.FullName, ShouldEqual, "Asha Verma")
		})

		Convey("A registration code matches case-insensitively", func() {
			reg, err := f.engine.Lookup(ctx, "reg-001")
			So(err, ShouldBeNil)
			So(reg.ID, ShouldEqual, paid.ID)
		})

		Convey("An enrollment number is the fallback match", func() {
			reg, err := f.engine.Lookup(ctx, "en-reg-001")
			So(err, ShouldBeNil)
			So(reg.ID, ShouldEqual, paid.ID)
		})

		Convey("An unknown identifier fails with not found", func() {
			_, err := f.engine.Lookup(ctx, "REG-999")
			So(err, ShouldWrap, race.ErrNotFound)
		})

		Convey("An unpaid rider fails with ineligible", func() {
			_, err := f.engine.Lookup(ctx, unpaid.RegistrationID)
			So(err, ShouldWrap, race.ErrIneligible)
			So(err.Error(), ShouldContainSubstring, "Rohan Iyer")
		})
	})
}

func TestEnqueueRules(t *testing.T) {
	Convey("Given a paid rider", t, func() {
		f := newFixture()
		reg := f.addRider("Asha Verma", "REG-001", 3)
		ctx := context.Background()

		Convey("The first scan queues the rider", func() {
			entry, err := f.engine.Enqueue(ctx, &reg, 1)
			So(err, ShouldBeNil)
			So(entry.RaceStatus, ShouldEqual, models.StatusQueued)

			Convey("A second scan while queued fails and leaves the queue unchanged", func() {
				_, err := f.engine.Enqueue(ctx, &reg, 1)
				So(err, ShouldWrap, race.ErrAlreadyActive)
				queue, qerr := f.engine.Queue(ctx, 1)
				So(qerr, ShouldBeNil)
				So(len(queue), ShouldEqual, 1)
			})

			Convey("A cancelled entry is revived with a fresh queued-at", func() {
				_, err := f.engine.Cancel(ctx, entry.ID)
				So(err, ShouldBeNil)
				f.clock.Advance(time.Minute)
				revived, err := f.engine.Enqueue(ctx, &reg, 1)
				So(err, ShouldBeNil)
				So(revived.ID, ShouldEqual, entry.ID)
				So(revived.RaceStatus, ShouldEqual, models.StatusQueued)
				So(revived.QueuedAt.After(entry.QueuedAt), ShouldBeTrue)
			})

			Convey("A queued entry on another day blocks enqueue there", func() {
				_, err := f.engine.Enqueue(ctx, &reg, 2)
				So(err, ShouldWrap, race.ErrCrossDayConflict)
			})
		})
	})
}

func TestFullRaceScenario(t *testing.T) {
	Convey("Given a rider with a three-lap quota", t, func() {
		f := newFixture()
		reg := f.addRider("Asha Verma", "REG-001", 3)
		ctx := context.Background()

		entry, err := f.engine.Enqueue(ctx, &reg, 1)
		So(err, ShouldBeNil)
		_, err = f.engine.MarkReady(ctx, entry.ID)
		So(err, ShouldBeNil)
		_, err = f.engine.AdmitToTrack(ctx, entry.ID)
		So(err, ShouldBeNil)

		Convey("A stop with no elapsed time records nothing", func() {
			_, _, err := f.engine.RecordLap(ctx, entry.ID)
			So(err, ShouldWrap, race.ErrInvalidLapTime)
			laps, lerr := f.engine.LapsFor(ctx, entry.ID)
			So(lerr, ShouldBeNil)
			So(laps, ShouldBeEmpty)
			// The clock keeps running so the real stop still lands.
			So(f.engine.ClockRunningFor(entry.ID), ShouldBeTrue)
		})

		Convey("Laps at 45000, 42000 and 44000 ms complete the race", func() {
			lap1, after1 := f.runLap(t, entry.ID, 45*time.Second)
			So(lap1.LapNumber, ShouldEqual, 1)
			So(lap1.LapTimeMs, ShouldEqual, 45000)
			So(after1.RaceStatus, ShouldEqual, models.StatusRacing)
			So(f.engine.ClockRunningFor(entry.ID), ShouldBeTrue)

			lap2, after2 := f.runLap(t, entry.ID, 42*time.Second)
			So(lap2.LapNumber, ShouldEqual, 2)
			So(after2.RoundsCompleted, ShouldEqual, 2)
			So(*after2.BestLapMs, ShouldEqual, 42000)

			lap3, after3 := f.runLap(t, entry.ID, 44*time.Second)
			So(lap3.LapNumber, ShouldEqual, 3)
			So(after3.RaceStatus, ShouldEqual, models.StatusCompleted)
			So(after3.RaceCompletedAt, ShouldNotBeNil)
			So(*after3.BestLapMs, ShouldEqual, 42000)
			So(*after3.AverageLapMs, ShouldEqual, 43667)
			So(f.engine.ClockRunningFor(entry.ID), ShouldBeFalse)

			Convey("Completion bars the rider from day two", func() {
				_, err := f.engine.Enqueue(ctx, &reg, 2)
				So(err, ShouldWrap, race.ErrCrossDayConflict)
			})

			Convey("And from re-queueing on day one", func() {
				_, err := f.engine.Enqueue(ctx, &reg, 1)
				So(err, ShouldWrap, race.ErrAlreadyCompleted)
			})

			Convey("Stopping again fails: no lap in progress", func() {
				_, _, err := f.engine.RecordLap(ctx, entry.ID)
				So(err, ShouldWrap, race.ErrInvalidTransition)
			})
		})
	})
}

func TestLapCorrections(t *testing.T) {
	Convey("Given a racing rider with two recorded laps", t, func() {
		f := newFixture()
		reg := f.addRider("Asha Verma", "REG-001", 5)
		ctx := context.Background()

		entry, err := f.engine.Enqueue(ctx, &reg, 1)
		So(err, ShouldBeNil)
		_, err = f.engine.AdmitToTrack(ctx, entry.ID)
		So(err, ShouldBeNil)
		lap1, _ := f.runLap(t, entry.ID, 50*time.Second)
		lap2, before := f.runLap(t, entry.ID, 40*time.Second)
		So(*before.BestLapMs, ShouldEqual, 40000)
		So(*before.AverageLapMs, ShouldEqual, 45000)

		Convey("Invalidating the new lap restores the previous stats", func() {
			_, err := f.engine.InvalidateLap(ctx, lap2.ID)
			So(err, ShouldBeNil)
			got, err := f.engine.EntryDetail(ctx, entry.ID)
			So(err, ShouldBeNil)
			So(got.RoundsCompleted, ShouldEqual, 1)
			So(*got.BestLapMs, ShouldEqual, 50000)
			So(*got.AverageLapMs, ShouldEqual, 50000)

			Convey("The next lap reuses number two", func() {
				lap3, _ := f.runLap(t, entry.ID, 45*time.Second)
				So(lap3.LapNumber, ShouldEqual, 2)
			})

			Convey("Invalidating is idempotent", func() {
				again, err := f.engine.InvalidateLap(ctx, lap2.ID)
				So(err, ShouldBeNil)
				So(again.Valid, ShouldBeFalse)
				got, err := f.engine.EntryDetail(ctx, entry.ID)
				So(err, ShouldBeNil)
				So(got.RoundsCompleted, ShouldEqual, 1)
			})
		})

		Convey("Invalidating every lap clears best and average to no value", func() {
			_, err := f.engine.InvalidateLap(ctx, lap1.ID)
			So(err, ShouldBeNil)
			_, err = f.engine.InvalidateLap(ctx, lap2.ID)
			So(err, ShouldBeNil)
			got, err := f.engine.EntryDetail(ctx, entry.ID)
			So(err, ShouldBeNil)
			So(got.RoundsCompleted, ShouldEqual, 0)
			So(got.BestLapMs, ShouldBeNil)
			So(got.AverageLapMs, ShouldBeNil)
		})

		Convey("Editing a lap time recomputes stats and is idempotent", func() {
			for i := 0; i < 2; i++ {
				_, err := f.engine.EditLapTime(ctx, lap1.ID, 38000)
				So(err, ShouldBeNil)
				got, gerr := f.engine.EntryDetail(ctx, entry.ID)
				So(gerr, ShouldBeNil)
				So(*got.BestLapMs, ShouldEqual, 38000)
				So(*got.AverageLapMs, ShouldEqual, 39000)
				So(got.RoundsCompleted, ShouldEqual, 2)
			}
		})

		Convey("A non-positive edit is rejected", func() {
			_, err := f.engine.EditLapTime(ctx, lap1.ID, 0)
			So(err, ShouldWrap, race.ErrInvalidLapTime)
		})

		Convey("Reset last lap invalidates the highest-numbered valid lap", func() {
			lap, err := f.engine.ResetLastLap(ctx, entry.ID)
			So(err, ShouldBeNil)
			So(lap.ID, ShouldEqual, lap2.ID)
			So(lap.Valid, ShouldBeFalse)
		})
	})
}

func TestSchedulerTransitions(t *testing.T) {
	Convey("Given two queued riders on the same day", t, func() {
		f := newFixture()
		regA := f.addRider("Asha Verma", "REG-001", 3)
		regB := f.addRider("Kiran Rao", "REG-002", 3)
		ctx := context.Background()

		entryA, err := f.engine.Enqueue(ctx, &regA, 1)
		So(err, ShouldBeNil)
		entryB, err := f.engine.Enqueue(ctx, &regB, 1)
		So(err, ShouldBeNil)

		Convey("Marking ready twice fails the second time", func() {
			_, err := f.engine.MarkReady(ctx, entryA.ID)
			So(err, ShouldBeNil)
			_, err = f.engine.MarkReady(ctx, entryA.ID)
			So(err, ShouldWrap, race.ErrInvalidTransition)
		})

		Convey("Only one rider may occupy the track", func() {
			_, err := f.engine.AdmitToTrack(ctx, entryA.ID)
			So(err, ShouldBeNil)
			_, err = f.engine.AdmitToTrack(ctx, entryB.ID)
			So(err, ShouldWrap, race.ErrTrackOccupied)
			So(err.Error(), ShouldContainSubstring, "Asha Verma")

			Convey("Racing entries leave the queue view", func() {
				queue, err := f.engine.Queue(ctx, 1)
				So(err, ShouldBeNil)
				So(len(queue), ShouldEqual, 1)
				So(queue[0].EntryID, ShouldEqual, entryB.ID)
			})

			Convey("Cancelling the occupant frees the track and the clock", func() {
				_, err := f.engine.Cancel(ctx, entryA.ID)
				So(err, ShouldBeNil)
				So(f.engine.ClockRunningFor(entryA.ID), ShouldBeFalse)
				_, err = f.engine.AdmitToTrack(ctx, entryB.ID)
				So(err, ShouldBeNil)
			})

			Convey("Disqualifying the occupant frees the track too", func() {
				_, err := f.engine.Disqualify(ctx, entryA.ID)
				So(err, ShouldBeNil)
				So(f.engine.ClockRunningFor(entryA.ID), ShouldBeFalse)
			})

			Convey("Re-admitting the occupant keeps the original race start", func() {
				before, err := f.engine.EntryDetail(ctx, entryA.ID)
				So(err, ShouldBeNil)
				f.clock.Advance(time.Minute)
				after, err := f.engine.AdmitToTrack(ctx, entryA.ID)
				So(err, ShouldBeNil)
				So(after.RaceStartedAt.Equal(*before.RaceStartedAt), ShouldBeTrue)
			})
		})

		Convey("A terminal entry cannot be admitted", func() {
			_, err := f.engine.Cancel(ctx, entryA.ID)
			So(err, ShouldBeNil)
			_, err = f.engine.AdmitToTrack(ctx, entryA.ID)
			So(err, ShouldWrap, race.ErrInvalidTransition)
		})
	})
}

func TestAdminOverrides(t *testing.T) {
	Convey("Given riders in assorted states", t, func() {
		f := newFixture()
		regA := f.addRider("Asha Verma", "REG-001", 3)
		regB := f.addRider("Kiran Rao", "REG-002", 3)
		regC := f.addRider("Meera Nair", "REG-003", 3)
		ctx := context.Background()

		entryA, err := f.engine.Enqueue(ctx, &regA, 1)
		So(err, ShouldBeNil)
		entryB, err := f.engine.Enqueue(ctx, &regB, 1)
		So(err, ShouldBeNil)
		entryC, err := f.engine.Enqueue(ctx, &regC, 1)
		So(err, ShouldBeNil)
		_, err = f.engine.MarkReady(ctx, entryB.ID)
		So(err, ShouldBeNil)
		_, err = f.engine.AdmitToTrack(ctx, entryC.ID)
		So(err, ShouldBeNil)

		Convey("Unconfirmed destructive calls are refused", func() {
			_, err := f.engine.ForceComplete(ctx, entryA.ID, false)
			So(err, ShouldWrap, race.ErrNotConfirmed)
			So(f.engine.ForceRemove(ctx, entryA.ID, false), ShouldWrap, race.ErrNotConfirmed)
			_, err = f.engine.ClearQueue(ctx, 1, false)
			So(err, ShouldWrap, race.ErrNotConfirmed)
			So(f.engine.ResetAll(ctx, false), ShouldWrap, race.ErrNotConfirmed)
		})

		Convey("ForceComplete bypasses the lap quota", func() {
			entry, err := f.engine.ForceComplete(ctx, entryA.ID, true)
			So(err, ShouldBeNil)
			So(entry.RaceStatus, ShouldEqual, models.StatusCompleted)
			So(entry.RaceCompletedAt, ShouldNotBeNil)
			So(entry.RoundsCompleted, ShouldEqual, 0)
		})

		Convey("ForceRemove deletes the racing occupant and frees the clock", func() {
			lap, _ := f.runLap(t, entryC.ID, 40*time.Second)
			So(f.engine.ForceRemove(ctx, entryC.ID, true), ShouldBeNil)
			So(f.engine.ClockRunningFor(entryC.ID), ShouldBeFalse)
			_, err := f.engine.EntryDetail(ctx, entryC.ID)
			So(err, ShouldWrap, race.ErrNotFound)
			_, err = f.engine.LapsFor(ctx, lap.EntryID)
			So(err, ShouldBeNil)
		})

		Convey("ClearQueue removes queued and ready but not racing", func() {
			n, err := f.engine.ClearQueue(ctx, 1, true)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			queue, err := f.engine.Queue(ctx, 1)
			So(err, ShouldBeNil)
			So(queue, ShouldBeEmpty)
			occupant, err := f.engine.EntryDetail(ctx, entryC.ID)
			So(err, ShouldBeNil)
			So(occupant.RaceStatus, ShouldEqual, models.StatusRacing)
		})

		Convey("ResetAll wipes everything and stops the clock", func() {
			So(f.engine.ResetAll(ctx, true), ShouldBeNil)
			So(f.engine.ClockRunningFor(entryC.ID), ShouldBeFalse)
			stats, err := f.engine.Stats(ctx, 1)
			So(err, ShouldBeNil)
			So(stats.TotalRiders, ShouldEqual, 0)
		})
	})
}

// faultyStore wraps a working store and fails selected calls.
type faultyStore struct {
	race.Store
	listErr   error
	insertErr error
}

func (s *faultyStore) EntriesForRegistration(ctx context.Context, regID int) ([]models.RaceEntry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.EntriesForRegistration(ctx, regID)
}

func (s *faultyStore) InsertEntry(ctx context.Context, e *models.RaceEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Store.InsertEntry(ctx, e)
}

func TestStoreFailureMapping(t *testing.T) {
	Convey("Given an engine over a failing store", t, func() {
		mem := race.NewMemStore()
		reg := mem.AddRegistration(models.Registration{
			RegistrationID: "REG-001",
			FullName:       "Asha Verma",
			Rounds:         3,
			IsPaid:         true,
			Status:         "PAID",
		})
		faulty := &faultyStore{Store: mem}
		days := race.NewDayTable(time.UTC, nil, 1)
		engine := race.New(faulty, days, notify.New(), zap.NewNop())
		ctx := context.Background()

		Convey("An unclassified failure surfaces as store unavailable", func() {
			faulty.listErr = errors.New("connection refused")
			_, err := engine.Enqueue(ctx, &reg, 1)
			So(err, ShouldWrap, race.ErrStoreUnavailable)
		})

		Convey("A duplicate-entry conflict from the store passes through", func() {
			faulty.insertErr = fmt.Errorf("%w: registration %d already has an entry for day 1",
				race.ErrAlreadyActive, reg.ID)
			_, err := engine.Enqueue(ctx, &reg, 1)
			So(err, ShouldWrap, race.ErrAlreadyActive)
			So(errors.Is(err, race.ErrStoreUnavailable), ShouldBeFalse)
		})
	})
}

func TestLeaderboardOrdering(t *testing.T) {
	Convey("Given three riders with and without laps", t, func() {
		f := newFixture()
		ctx := context.Background()

		// Each rider's quota equals the lap count, so the final lap
		// completes the run and frees the track for the next rider. A
		// rider with no laps is force-completed onto the board.
		ride := func(code string, lapTimes ...time.Duration) int {
			reg := f.addRider("Rider "+code, code, len(lapTimes))
			entry, err := f.engine.Enqueue(ctx, &reg, 1)
			So(err, ShouldBeNil)
			if len(lapTimes) == 0 {
				_, err = f.engine.ForceComplete(ctx, entry.ID, true)
				So(err, ShouldBeNil)
				return entry.ID
			}
			_, err = f.engine.AdmitToTrack(ctx, entry.ID)
			So(err, ShouldBeNil)
			for _, d := range lapTimes {
				f.runLap(t, entry.ID, d)
			}
			return entry.ID
		}

		slow := ride("REG-001", 50*time.Second)
		fast := ride("REG-002", 39*time.Second)
		noLaps := ride("REG-003")

		Convey("Best lap ascending, no-value last", func() {
			rows, err := f.engine.Leaderboard(ctx, 1)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 3)
			So(rows[0].EntryID, ShouldEqual, fast)
			So(rows[0].Rank, ShouldEqual, 1)
			So(rows[0].BestLap, ShouldEqual, "00:39.000")
			So(rows[1].EntryID, ShouldEqual, slow)
			So(rows[2].EntryID, ShouldEqual, noLaps)
			So(rows[2].BestLap, ShouldEqual, "--")
		})
	})
}

func TestActiveSessionProjection(t *testing.T) {
	Convey("Given a racing rider with one recorded lap", t, func() {
		f := newFixture()
		reg := f.addRider("Asha Verma", "REG-001", 3)
		ctx := context.Background()

		entry, err := f.engine.Enqueue(ctx, &reg, 1)
		So(err, ShouldBeNil)
		_, err = f.engine.AdmitToTrack(ctx, entry.ID)
		So(err, ShouldBeNil)
		f.runLap(t, entry.ID, 45*time.Second)
		f.clock.Advance(10 * time.Second)

		Convey("The current lap elapsed derives from race start plus valid laps", func() {
			session, err := f.engine.Active(ctx, 1)
			So(err, ShouldBeNil)
			So(session, ShouldNotBeNil)
			So(session.Entry.ID, ShouldEqual, entry.ID)
			So(session.FullName, ShouldEqual, "Asha Verma")
			So(len(session.Laps), ShouldEqual, 1)
			So(session.CurrentLapElapsedMs, ShouldEqual, 10000)
		})

		Convey("A free track yields no session", func() {
			_, err := f.engine.Cancel(ctx, entry.ID)
			So(err, ShouldBeNil)
			session, err := f.engine.Active(ctx, 1)
			So(err, ShouldBeNil)
			So(session, ShouldBeNil)
		})
	})
}
