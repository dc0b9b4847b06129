package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RaceStatus is the closed set of lifecycle states for a race entry.
type RaceStatus string

const (
	StatusNotCheckedIn RaceStatus = "not_checked_in"
	StatusQueued       RaceStatus = "queued"
	StatusReady        RaceStatus = "ready"
	StatusRacing       RaceStatus = "racing"
	StatusCompleted    RaceStatus = "completed"
	StatusCancelled    RaceStatus = "cancelled"
	StatusDisqualified RaceStatus = "disqualified"
)

// Active reports whether the entry currently occupies or may claim the
// queue/track (queued, ready or racing).
func (s RaceStatus) Active() bool {
	return s == StatusQueued || s == StatusReady || s == StatusRacing
}

// RaceEntry is one rider's participation record for one event day.
type RaceEntry struct {
	bun.BaseModel `bun:"table:race_entries,alias:re"`

	ID              int        `bun:"id,pk,autoincrement" json:"id"`
	RegistrationID  int        `bun:"registration_id,notnull" json:"registrationID"`
	Day             int        `bun:"day,notnull" json:"day"`
	RaceStatus      RaceStatus `bun:"race_status,notnull,default:'queued'" json:"raceStatus"`
	QueuedAt        time.Time  `bun:"queued_at,notnull" json:"queuedAt"`
	RaceStartedAt   *time.Time `bun:"race_started_at" json:"raceStartedAt,omitempty"`
	RaceCompletedAt *time.Time `bun:"race_completed_at" json:"raceCompletedAt,omitempty"`
	RoundsCompleted int        `bun:"rounds_completed,notnull,default:0" json:"roundsCompleted"`
	BestLapMs       *int64     `bun:"best_lap_time_ms" json:"bestLapMs,omitempty"`
	AverageLapMs    *int64     `bun:"average_lap_time_ms" json:"averageLapMs,omitempty"`

	Registration *Registration `bun:"rel:belongs-to,join:registration_id=id" json:"registration,omitempty"`
}
