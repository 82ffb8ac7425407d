package engine

import (
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"

	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
)

// RetryPolicy decides whether a failed attempt is tried again and how long
// to wait first. Retriability is a property of the error kind alone.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int
	// Delay is the fixed wait between attempts, or the initial wait in exponential mode
	Delay time.Duration
	// Exponential grows the wait by Multiplier up to MaxDelay, with jitter
	Exponential bool
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy retries three times, one minute apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      time.Minute,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2,
	}
}

// Validate rejects negative or inconsistent settings
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative: %d", p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative: %s", p.Delay)
	}
	if p.Exponential && p.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %g", p.Multiplier)
	}
	return nil
}

// MaxAttempts is the total number of attempts a retriable failure gets
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// ShouldRetry reports whether another attempt follows a failure on attempt
// number attempts (1-based).
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	return etlerrors.IsRetriable(err) && attempts < p.MaxAttempts()
}

// Backoff returns the wait schedule for one task instance
func (p RetryPolicy) Backoff() Pauser {
	if !p.Exponential {
		return fixedPause(p.Delay)
	}
	max := p.MaxDelay
	if max < p.Delay {
		max = p.Delay
	}
	return &gax.Backoff{
		Initial:    p.Delay,
		Max:        max,
		Multiplier: p.Multiplier,
	}
}

// Pauser yields successive retry waits
type Pauser interface {
	Pause() time.Duration
}

type fixedPause time.Duration

func (f fixedPause) Pause() time.Duration {
	return time.Duration(f)
}
