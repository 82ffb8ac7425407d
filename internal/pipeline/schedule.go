package pipeline

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxLookback bounds the search for the previous fire time
const maxLookback = 2 * 366 * 24 * time.Hour

// Schedule derives run keys from a standard five-field cron expression
type Schedule struct {
	Expr string
	// Start is the first instant a run may be scheduled for; zero means unbounded
	Start time.Time

	sched cron.Schedule
}

// ParseSchedule parses a cron expression such as "0 5 * * *"
func ParseSchedule(expr string, start time.Time) (*Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return &Schedule{Expr: expr, Start: start, sched: sched}, nil
}

// Next returns the first fire time strictly after t
func (s *Schedule) Next(t time.Time) time.Time {
	next := s.sched.Next(t)
	if !s.Start.IsZero() && next.Before(s.Start) {
		return s.sched.Next(s.Start.Add(-time.Nanosecond))
	}
	return next
}

// Previous returns the last fire time strictly before t. It reports false
// when no fire time exists at or after Start.
func (s *Schedule) Previous(t time.Time) (time.Time, bool) {
	for window := time.Hour; window <= maxLookback; window *= 2 {
		var last time.Time
		for n := s.sched.Next(t.Add(-window)); !n.IsZero() && n.Before(t); n = s.sched.Next(n) {
			last = n
		}
		if last.IsZero() {
			continue
		}
		if !s.Start.IsZero() && last.Before(s.Start) {
			return time.Time{}, false
		}
		return last, true
	}
	return time.Time{}, false
}

// Latest returns the most recent fire time at or before t
func (s *Schedule) Latest(t time.Time) (time.Time, bool) {
	return s.Previous(t.Add(time.Nanosecond))
}

// Upcoming returns the next n fire times after t
func (s *Schedule) Upcoming(t time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = s.Next(t)
		times = append(times, t)
	}
	return times
}

// Keys returns the run key for the fire time at and the key of the fire
// time before it, which is empty for the first scheduled run.
func (s *Schedule) Keys(at time.Time) (runKey, previousKey string) {
	runKey = RunKey(at)
	if prev, ok := s.Previous(at); ok {
		previousKey = RunKey(prev)
	}
	return runKey, previousKey
}

// RunKey formats a fire time as a run key
func RunKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseRunKey parses a key produced by RunKey
func ParseRunKey(key string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("run key %q is not an RFC 3339 timestamp: %w", key, err)
	}
	return t, nil
}
