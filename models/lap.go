package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Lap is one timed circuit attempt. Invalidation is a soft delete: the
// row keeps its lap number and only the valid flag flips.
type Lap struct {
	bun.BaseModel `bun:"table:laps,alias:lp"`

	ID         int       `bun:"id,pk,autoincrement" json:"id"`
	EntryID    int       `bun:"entry_id,notnull" json:"entryID"`
	Day        int       `bun:"day,notnull" json:"day"`
	LapNumber  int       `bun:"lap_number,notnull" json:"lapNumber"`
	LapTimeMs  int64     `bun:"lap_time_ms,notnull" json:"lapTimeMs"`
	Valid      bool      `bun:"valid,notnull,default:true" json:"valid"`
	RecordedAt time.Time `bun:"recorded_at,notnull" json:"recordedAt"`
}
