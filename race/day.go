package race

import "time"

// DayTable maps calendar dates in the event timezone to event day
// numbers. Dates outside the schedule fall back to a configured default
// so a late-running console keeps working after the last scheduled day.
type DayTable struct {
	loc        *time.Location
	days       map[string]int
	defaultDay int
	total      int
}

// NewDayTable builds a day table from date strings (YYYY-MM-DD) keyed to
// day numbers. The location decides which calendar date "now" falls on.
func NewDayTable(loc *time.Location, days map[string]int, defaultDay int) *DayTable {
	total := defaultDay
	for _, d := range days {
		if d > total {
			total = d
		}
	}
	return &DayTable{loc: loc, days: days, defaultDay: defaultDay, total: total}
}

// DayFor returns the event day for the given instant.
func (t *DayTable) DayFor(now time.Time) int {
	if d, ok := t.days[now.In(t.loc).Format("2006-01-02")]; ok {
		return d
	}
	return t.defaultDay
}

// TotalDays returns the highest day number in the schedule.
func (t *DayTable) TotalDays() int {
	return t.total
}
