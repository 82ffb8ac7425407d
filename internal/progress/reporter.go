package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProgressInfo is a snapshot of one run's task states
type ProgressInfo struct {
	Pipeline          string
	RunKey            string
	TotalTasks        int
	CompletedTasks    int // terminal tasks, whatever their status
	FailedTasks       int
	SkippedTasks      int
	RunningTasks      int
	ElapsedTime       time.Duration
	EstimatedTimeLeft time.Duration
	KindBreakdown     map[string]KindStats
}

// KindStats counts the tasks of one operator kind
type KindStats struct {
	Total        int
	Completed    int
	Failed       int
	Skipped      int
	Running      int
	Pending      int
	RunningTasks []string
}

// Percent is the share of terminal tasks
func (p ProgressInfo) Percent() float64 {
	if p.TotalTasks == 0 {
		return 0
	}
	return float64(p.CompletedTasks) * 100 / float64(p.TotalTasks)
}

// Reporter rate-limits progress lines for a run
type Reporter struct {
	interval time.Duration
	start    time.Time
	last     time.Time
	now      func() time.Time
}

// NewReporter starts the clock of a run
func NewReporter(interval time.Duration) *Reporter {
	return newReporter(interval, time.Now)
}

func newReporter(interval time.Duration, now func() time.Time) *Reporter {
	t := now()
	return &Reporter{interval: interval, start: t, last: t, now: now}
}

// ShouldReport reports whether interval has passed since the last report
func (r *Reporter) ShouldReport() bool {
	return r.now().Sub(r.last) >= r.interval
}

func (r *Reporter) Elapsed() time.Duration {
	return r.now().Sub(r.start)
}

// Report renders info and restarts the interval
func (r *Reporter) Report(info ProgressInfo) string {
	r.last = r.now()

	head := []string{fmt.Sprintf("%d/%d tasks done (%.0f%%)", info.CompletedTasks, info.TotalTasks, info.Percent())}
	if info.RunningTasks > 0 {
		head = append(head, fmt.Sprintf("%d running", info.RunningTasks))
	}
	if info.FailedTasks > 0 {
		head = append(head, fmt.Sprintf("%d failed", info.FailedTasks))
	}
	if info.SkippedTasks > 0 {
		head = append(head, fmt.Sprintf("%d skipped", info.SkippedTasks))
	}
	head = append(head, "elapsed "+FormatDuration(info.ElapsedTime))
	if info.EstimatedTimeLeft > 0 {
		head = append(head, "about "+FormatDuration(info.EstimatedTimeLeft)+" left")
	}

	var sb strings.Builder
	if info.RunKey != "" {
		fmt.Fprintf(&sb, "[%s] ", info.RunKey)
	}
	sb.WriteString(strings.Join(head, ", "))

	kinds := make([]string, 0, len(info.KindBreakdown))
	for kind, stats := range info.KindBreakdown {
		if stats.Total > 0 {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		sb.WriteString("\n   ")
		sb.WriteString(kindLine(kind, info.KindBreakdown[kind]))
	}
	return sb.String()
}

func kindLine(kind string, s KindStats) string {
	line := fmt.Sprintf("%-15s %d/%d", kind, s.Completed, s.Total)
	var extra []string
	if s.Running > 0 {
		running := fmt.Sprintf("running %s", strings.Join(s.RunningTasks, " "))
		if len(s.RunningTasks) == 0 {
			running = fmt.Sprintf("%d running", s.Running)
		}
		extra = append(extra, running)
	}
	if s.Pending > 0 {
		extra = append(extra, fmt.Sprintf("%d waiting", s.Pending))
	}
	if s.Failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Skipped > 0 {
		extra = append(extra, fmt.Sprintf("%d skipped", s.Skipped))
	}
	if len(extra) > 0 {
		line += " (" + strings.Join(extra, ", ") + ")"
	}
	return line
}

// CalculateETA extrapolates the remaining time from the mean time per finished task
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || completed >= total {
		return 0
	}
	return elapsed / time.Duration(completed) * time.Duration(total-completed)
}

// FormatDuration renders d with its two most significant units, e.g. 2m5s or 1h1m
func FormatDuration(d time.Duration) string {
	if d < time.Hour {
		return d.Truncate(time.Second).String()
	}
	return strings.TrimSuffix(d.Truncate(time.Minute).String(), "0s")
}
