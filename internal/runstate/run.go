package runstate

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
)

// keyNamespace scopes idempotency keys to this tool
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/maxkimambo/energy-etl/runs"))

// ErrorInfo is the persisted form of a task failure
type ErrorInfo struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Failures []string `json:"failures,omitempty"`
	// Upstream names the failed ancestor for UpstreamFailed and Skipped tasks
	Upstream string `json:"upstream,omitempty"`
}

// NewErrorInfo converts an error into its persisted form
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Kind:    string(etlerrors.KindOf(err)),
		Message: err.Error(),
	}
	var te *etlerrors.TaskError
	if errors.As(err, &te) {
		info.Message = te.Message
		if te.Cause != nil {
			info.Message += ": " + te.Cause.Error()
		}
		info.Failures = append(info.Failures, te.Failures...)
		if root, ok := te.Context["failed_task"].(string); ok {
			info.Upstream = root
		}
	}
	return info
}

// TaskState is one task instance within a run
type TaskState struct {
	TaskID     string     `json:"task_id"`
	Kind       string     `json:"kind"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempt_count"`
	LastError  *ErrorInfo `json:"last_error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the engine
func (t *TaskState) Clone() *TaskState {
	c := *t
	if t.LastError != nil {
		e := *t.LastError
		e.Failures = append([]string(nil), t.LastError.Failures...)
		c.LastError = &e
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}

// RunInstance is one execution of a pipeline graph for a schedule key
type RunInstance struct {
	Pipeline       string                `json:"pipeline"`
	RunKey         string                `json:"run_key"`
	IdempotencyKey string                `json:"idempotency_key"`
	ExecutionID    string                `json:"execution_id"`
	Outcome        Outcome               `json:"outcome"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`
	Tasks          map[string]*TaskState `json:"tasks"`
}

// IdempotencyKey derives the stable key for a (pipeline, run key) pair.
// Triggering the same schedule key twice yields the same value.
func IdempotencyKey(pipeline, runKey string) string {
	return uuid.NewSHA1(keyNamespace, []byte(pipeline+"\x00"+runKey)).String()
}

// NewRunInstance creates a run with every task Pending
func NewRunInstance(pipeline, runKey string, kinds map[string]string, now time.Time) *RunInstance {
	run := &RunInstance{
		Pipeline:       pipeline,
		RunKey:         runKey,
		IdempotencyKey: IdempotencyKey(pipeline, runKey),
		ExecutionID:    uuid.NewString(),
		Outcome:        OutcomeRunning,
		StartedAt:      now,
		Tasks:          make(map[string]*TaskState, len(kinds)),
	}
	for id, kind := range kinds {
		run.Tasks[id] = &TaskState{TaskID: id, Kind: kind, Status: StatusPending}
	}
	return run
}

// TaskIDs returns the task ids sorted lexicographically
func (r *RunInstance) TaskIDs() []string {
	ids := make([]string, 0, len(r.Tasks))
	for id := range r.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy of the run
func (r *RunInstance) Clone() *RunInstance {
	c := *r
	if r.FinishedAt != nil {
		f := *r.FinishedAt
		c.FinishedAt = &f
	}
	c.Tasks = make(map[string]*TaskState, len(r.Tasks))
	for id, t := range r.Tasks {
		c.Tasks[id] = t.Clone()
	}
	return &c
}

// Counts returns the number of tasks per status
func (r *RunInstance) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, t := range r.Tasks {
		counts[t.Status]++
	}
	return counts
}
