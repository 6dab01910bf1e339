package economy

import (
	"time"

	"github.com/canvashq/canvas/internal/model"
)

// CompletionWindow returns the counting window for a task type around the
// given time. Nil bounds mean the window is open on that side: once and
// per_action tasks count completions over the account's lifetime.
// Daily windows are UTC calendar days; weekly windows are ISO weeks
// (Monday 00:00 UTC).
func CompletionWindow(t model.TaskType, at time.Time) (start, end *time.Time) {
	at = at.UTC()

	switch t {
	case model.TaskDaily:
		s := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		e := s.Add(24 * time.Hour)
		return &s, &e
	case model.TaskWeekly:
		day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday has Sunday = 0; shift so Monday opens the week.
		offset := (int(day.Weekday()) + 6) % 7
		s := day.AddDate(0, 0, -offset)
		e := s.AddDate(0, 0, 7)
		return &s, &e
	default:
		return nil, nil
	}
}

// DayWindow returns the UTC calendar day containing at, used for scenario
// daily limits.
func DayWindow(at time.Time) (start, end time.Time) {
	at = at.UTC()
	start = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}
