// Package ledger records run instances and every task state transition so
// finished runs can be audited and the previous schedule's outcome consulted.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maxkimambo/energy-etl/internal/runstate"
)

// ErrRunNotFound is returned when no record exists for a run key
var ErrRunNotFound = errors.New("run not found in ledger")

// Transition is one task state change
type Transition struct {
	TaskID  string              `json:"task_id"`
	From    runstate.Status     `json:"from"`
	To      runstate.Status     `json:"to"`
	Attempt int                 `json:"attempt"`
	At      time.Time           `json:"at"`
	Error   *runstate.ErrorInfo `json:"error,omitempty"`
}

// Record is everything the ledger knows about one run
type Record struct {
	Run         *runstate.RunInstance `json:"run"`
	Transitions []Transition          `json:"transitions"`
}

// Ledger persists run records. Records are keyed by the run's idempotency
// key, so starting a run for a key that already exists replaces it.
type Ledger interface {
	StartRun(ctx context.Context, run *runstate.RunInstance) error
	RecordTransition(ctx context.Context, idempotencyKey string, task *runstate.TaskState, t Transition) error
	FinishRun(ctx context.Context, run *runstate.RunInstance) error
	Load(ctx context.Context, pipeline, runKey string) (*Record, error)
	List(ctx context.Context, pipeline string) ([]*runstate.RunInstance, error)
}

// MemoryLedger keeps records in process memory
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*Record)}
}

// StartRun implements Ledger
func (l *MemoryLedger) StartRun(_ context.Context, run *runstate.RunInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[run.IdempotencyKey] = &Record{Run: run.Clone(), Transitions: []Transition{}}
	return nil
}

// RecordTransition implements Ledger
func (l *MemoryLedger) RecordTransition(_ context.Context, key string, task *runstate.TaskState, t Transition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.applyTransition(key, task, t)
	return err
}

func (l *MemoryLedger) applyTransition(key string, task *runstate.TaskState, t Transition) (*Record, error) {
	rec, ok := l.records[key]
	if !ok {
		return nil, ErrRunNotFound
	}
	rec.Run.Tasks[task.TaskID] = task.Clone()
	rec.Transitions = append(rec.Transitions, t)
	return rec, nil
}

// FinishRun implements Ledger
func (l *MemoryLedger) FinishRun(_ context.Context, run *runstate.RunInstance) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.applyFinish(run)
	return err
}

func (l *MemoryLedger) applyFinish(run *runstate.RunInstance) (*Record, error) {
	rec, ok := l.records[run.IdempotencyKey]
	if !ok {
		return nil, ErrRunNotFound
	}
	rec.Run = run.Clone()
	return rec, nil
}

// Load implements Ledger
func (l *MemoryLedger) Load(_ context.Context, pipeline, runKey string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[runstate.IdempotencyKey(pipeline, runKey)]
	if !ok {
		return nil, ErrRunNotFound
	}
	return rec.clone(), nil
}

// List implements Ledger
func (l *MemoryLedger) List(_ context.Context, pipeline string) ([]*runstate.RunInstance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var runs []*runstate.RunInstance
	for _, rec := range l.records {
		if pipeline == "" || rec.Run.Pipeline == pipeline {
			runs = append(runs, rec.Run.Clone())
		}
	}
	sortRuns(runs)
	return runs, nil
}

func (r *Record) clone() *Record {
	return &Record{
		Run:         r.Run.Clone(),
		Transitions: append([]Transition(nil), r.Transitions...),
	}
}

func sortRuns(runs []*runstate.RunInstance) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Pipeline != runs[j].Pipeline {
			return runs[i].Pipeline < runs[j].Pipeline
		}
		return runs[i].RunKey < runs[j].RunKey
	})
}
