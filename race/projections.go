package race

import (
	"context"
	"sort"
	"time"

	"github.com/aarunya/kartapi/models"
)

// QueueItem is one row of the day's waiting list.
type QueueItem struct {
	Position       int               `json:"position"`
	EntryID        int               `json:"entryID"`
	RegistrationID string            `json:"registrationID"`
	FullName       string            `json:"fullName"`
	EnrollmentNo   string            `json:"enrollmentNo"`
	College        string            `json:"college"`
	Rounds         int               `json:"rounds"`
	RaceStatus     models.RaceStatus `json:"raceStatus"`
	QueuedAt       time.Time         `json:"queuedAt"`
}

// LeaderboardRow is one ranked row of the day's leaderboard.
type LeaderboardRow struct {
	Rank            int               `json:"rank"`
	EntryID         int               `json:"entryID"`
	FullName        string            `json:"fullName"`
	College         string            `json:"college"`
	RaceStatus      models.RaceStatus `json:"raceStatus"`
	RoundsCompleted int               `json:"roundsCompleted"`
	Rounds          int               `json:"rounds"`
	BestLapMs       *int64            `json:"bestLapMs,omitempty"`
	AverageLapMs    *int64            `json:"averageLapMs,omitempty"`
	BestLap         string            `json:"bestLap"`
	AverageLap      string            `json:"averageLap"`
}

// ActiveSession is the live view of the rider occupying the track.
type ActiveSession struct {
	Entry               *models.RaceEntry `json:"entry"`
	FullName            string            `json:"fullName"`
	RegistrationID      string            `json:"registrationID"`
	College             string            `json:"college"`
	Rounds              int               `json:"rounds"`
	Laps                []models.Lap      `json:"laps"`
	CurrentLapElapsedMs int64             `json:"currentLapElapsedMs"`
}

// DayStats summarizes a day for the public display.
type DayStats struct {
	Day            int    `json:"day"`
	TotalRiders    int    `json:"totalRiders"`
	Completed      int    `json:"completed"`
	OverallBestMs  *int64 `json:"overallBestMs,omitempty"`
	OverallBest    string `json:"overallBest"`
	OverallBestBy  string `json:"overallBestBy,omitempty"`
}

// TickerLap is one row of the recent-laps footer ticker.
type TickerLap struct {
	FullName   string    `json:"fullName"`
	LapNumber  int       `json:"lapNumber"`
	LapTimeMs  int64     `json:"lapTimeMs"`
	LapTime    string    `json:"lapTime"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Queue returns the day's waiting list: queued and ready entries in
// FIFO order by queued-at.
func (e *Engine) Queue(ctx context.Context, day int) ([]QueueItem, error) {
	entries, err := e.store.EntriesByStatus(ctx, day, models.StatusQueued, models.StatusReady)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].QueuedAt.Before(entries[j].QueuedAt)
	})
	out := make([]QueueItem, len(entries))
	for i := range entries {
		en := &entries[i]
		item := QueueItem{
			Position:   i + 1,
			EntryID:    en.ID,
			RaceStatus: en.RaceStatus,
			QueuedAt:   en.QueuedAt,
			Rounds:     1,
		}
		if reg := en.Registration; reg != nil {
			item.RegistrationID = reg.RegistrationID
			item.FullName = reg.FullName
			item.EnrollmentNo = reg.EnrollmentNo
			item.College = reg.College
			item.Rounds = reg.LapQuota()
		}
		out[i] = item
	}
	return out, nil
}

// Leaderboard ranks the day's racing and completed entries by best lap
// ascending, no-value last, ties broken by earliest queued-at.
func (e *Engine) Leaderboard(ctx context.Context, day int) ([]LeaderboardRow, error) {
	entries, err := e.store.EntriesByStatus(ctx, day, models.StatusRacing, models.StatusCompleted)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].BestLapMs, entries[j].BestLapMs
		switch {
		case a == nil && b == nil:
			return entries[i].QueuedAt.Before(entries[j].QueuedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return entries[i].QueuedAt.Before(entries[j].QueuedAt)
		}
	})
	out := make([]LeaderboardRow, len(entries))
	for i := range entries {
		en := &entries[i]
		row := LeaderboardRow{
			Rank:            i + 1,
			EntryID:         en.ID,
			RaceStatus:      en.RaceStatus,
			RoundsCompleted: en.RoundsCompleted,
			Rounds:          1,
			BestLapMs:       en.BestLapMs,
			AverageLapMs:    en.AverageLapMs,
			BestLap:         FormatMs(en.BestLapMs),
			AverageLap:      FormatMs(en.AverageLapMs),
		}
		if reg := en.Registration; reg != nil {
			row.FullName = reg.FullName
			row.College = reg.College
			row.Rounds = reg.LapQuota()
		}
		out[i] = row
	}
	return out, nil
}

// Active returns the day's track occupant with laps and a derived
// current-lap elapsed time, or nil when the track is free. The elapsed
// time is reconstructed from the persisted race start plus the recorded
// valid lap durations, so it survives a process restart mid-lap.
func (e *Engine) Active(ctx context.Context, day int) (*ActiveSession, error) {
	entries, err := e.store.EntriesByStatus(ctx, day, models.StatusRacing)
	if err != nil {
		return nil, storeErr(err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	en := &entries[0]
	laps, err := e.store.LapsForEntry(ctx, en.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(laps, func(i, j int) bool { return laps[i].LapNumber < laps[j].LapNumber })

	session := &ActiveSession{Entry: en, Laps: laps, Rounds: 1}
	if reg := en.Registration; reg != nil {
		session.FullName = reg.FullName
		session.RegistrationID = reg.RegistrationID
		session.College = reg.College
		session.Rounds = reg.LapQuota()
	}
	if en.RaceStartedAt != nil {
		lapStart := *en.RaceStartedAt
		for _, l := range laps {
			if l.Valid {
				lapStart = lapStart.Add(time.Duration(l.LapTimeMs) * time.Millisecond)
			}
		}
		if elapsed := e.now().Sub(lapStart).Milliseconds(); elapsed > 0 {
			session.CurrentLapElapsedMs = elapsed
		}
	}
	return session, nil
}

// EntryDetail returns one entry with its registration loaded.
func (e *Engine) EntryDetail(ctx context.Context, entryID int) (*models.RaceEntry, error) {
	entry, err := e.store.EntryByID(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	return entry, nil
}

// LapsFor returns all laps of an entry ordered by lap number, invalid
// ones included so operators can review corrections.
func (e *Engine) LapsFor(ctx context.Context, entryID int) ([]models.Lap, error) {
	laps, err := e.store.LapsForEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.SliceStable(laps, func(i, j int) bool { return laps[i].LapNumber < laps[j].LapNumber })
	return laps, nil
}

// Stats summarizes the day's participation and overall best lap.
func (e *Engine) Stats(ctx context.Context, day int) (*DayStats, error) {
	entries, err := e.store.EntriesByStatus(ctx, day)
	if err != nil {
		return nil, storeErr(err)
	}
	stats := &DayStats{Day: day, TotalRiders: len(entries)}
	for i := range entries {
		en := &entries[i]
		if en.RaceStatus == models.StatusCompleted {
			stats.Completed++
		}
		if en.BestLapMs != nil && (stats.OverallBestMs == nil || *en.BestLapMs < *stats.OverallBestMs) {
			stats.OverallBestMs = en.BestLapMs
			if en.Registration != nil {
				stats.OverallBestBy = en.Registration.FullName
			}
		}
	}
	stats.OverallBest = FormatMs(stats.OverallBestMs)
	return stats, nil
}

// RecentLaps returns the day's latest valid laps, newest first, with
// rider names resolved for the ticker.
func (e *Engine) RecentLaps(ctx context.Context, day, limit int) ([]TickerLap, error) {
	if limit <= 0 {
		limit = 10
	}
	laps, err := e.store.RecentLaps(ctx, day, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	entries, err := e.store.EntriesByStatus(ctx, day)
	if err != nil {
		return nil, storeErr(err)
	}
	names := make(map[int]string, len(entries))
	for i := range entries {
		if entries[i].Registration != nil {
			names[entries[i].ID] = entries[i].Registration.FullName
		}
	}
	out := make([]TickerLap, len(laps))
	for i, l := range laps {
		ms := l.LapTimeMs
		out[i] = TickerLap{
			FullName:   names[l.EntryID],
			LapNumber:  l.LapNumber,
			LapTimeMs:  ms,
			LapTime:    FormatMs(&ms),
			RecordedAt: l.RecordedAt,
		}
	}
	return out, nil
}
