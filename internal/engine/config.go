package engine

import (
	"fmt"
	"time"
)

// Config contains configuration for the execution engine
type Config struct {
	// MaxParallelTasks caps concurrently running operator calls; 0 leaves
	// parallelism bounded only by the graph's width
	MaxParallelTasks int

	// TaskTimeout is the deadline of a single operator call
	TaskTimeout time.Duration

	// Retry is applied to every task
	Retry RetryPolicy

	// DependsOnPast applies the previous-run check to every task, in addition
	// to tasks that opt in individually
	DependsOnPast bool

	// ProgressInterval is how often progress is reported; 0 disables it
	ProgressInterval time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxParallelTasks: 0,
		TaskTimeout:      15 * time.Minute,
		Retry:            DefaultRetryPolicy(),
		ProgressInterval: 30 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxParallelTasks < 0 {
		return fmt.Errorf("max parallel tasks cannot be negative: %d", c.MaxParallelTasks)
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task timeout must be positive, got %s", c.TaskTimeout)
	}
	return c.Retry.Validate()
}
