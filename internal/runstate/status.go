// Package runstate holds the per-run and per-task state records shared by the
// execution engine and the run ledger.
package runstate

// Status is the lifecycle phase of a task instance within a run
type Status string

const (
	StatusPending        Status = "pending"
	StatusReady          Status = "ready"
	StatusRunning        Status = "running"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusUpstreamFailed Status = "upstream_failed"
	StatusSkipped        Status = "skipped"
)

// String returns the canonical lowercase token
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can happen
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusUpstreamFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSkipped reports whether the task ended without running.
// UpstreamFailed is the skip state of direct children of a failed task.
func (s Status) IsSkipped() bool {
	return s == StatusSkipped || s == StatusUpstreamFailed
}

// IsActive reports whether the task still holds the run open
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusReady || s == StatusRunning
}

// Outcome is the overall result of a run
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)
