package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Delay: time.Second}
	quality := etlerrors.NewQualityAssertionError("gate", 1, []string{"x"})

	tests := []struct {
		name     string
		err      error
		attempts int
		want     bool
	}{
		{"transient first attempt", etlerrors.New(etlerrors.KindConnectionTransient, "reset", "op"), 1, true},
		{"transient last retry", etlerrors.New(etlerrors.KindTimeout, "deadline", "op"), 2, true},
		{"transient exhausted", etlerrors.New(etlerrors.KindTimeout, "deadline", "op"), 3, false},
		{"quality never retried", quality, 1, false},
		{"unclassified error is transient", errors.New("eof"), 1, true},
		{"nil error", nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempts))
		})
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	fixed := RetryPolicy{MaxRetries: 3, Delay: time.Minute}.Backoff()
	for i := 0; i < 3; i++ {
		assert.Equal(t, time.Minute, fixed.Pause())
	}

	exp := RetryPolicy{MaxRetries: 5, Delay: 10 * time.Millisecond, Exponential: true, MaxDelay: 50 * time.Millisecond, Multiplier: 2}.Backoff()
	for i := 0; i < 10; i++ {
		d := exp.Pause()
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.Error(t, RetryPolicy{MaxRetries: -1}.Validate())
	assert.Error(t, RetryPolicy{Delay: -time.Second}.Validate())
	assert.Error(t, RetryPolicy{Exponential: true, Multiplier: 0.5}.Validate())
	assert.Equal(t, 4, DefaultRetryPolicy().MaxAttempts())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxParallelTasks = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Retry.MaxRetries = -2
	assert.Error(t, cfg.Validate())
}
