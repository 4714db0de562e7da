package types

import "time"

// Habit frequency policies.
const (
	FrequencyDaily    = "daily"
	FrequencyWeekdays = "weekdays"
	FrequencyCustom   = "custom"
)

// Habit is a recurring routine with a completion streak.
type Habit struct {
	Envelope

	Title             string
	Frequency         string     // One of the Frequency constants.
	StreakCount       int        // Consecutive completions.
	LastCompletedDate *time.Time // Last time Complete succeeded.
	CreatedAt         time.Time
}

// TableName implements Entity.
func (h *Habit) TableName() string { return TableHabits }

// Complete records a completion at now. A second completion on the same
// calendar day is a no-op and returns false.
func (h *Habit) Complete(now time.Time) bool {
	if h.LastCompletedDate != nil && sameDay(*h.LastCompletedDate, now) {
		return false
	}
	h.StreakCount++
	h.LastCompletedDate = &now
	return true
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
