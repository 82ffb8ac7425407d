package runstate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
)

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("euro_energy", "2024-01-01T00:00:00Z")
	b := IdempotencyKey("euro_energy", "2024-01-01T00:00:00Z")
	c := IdempotencyKey("euro_energy", "2024-01-02T00:00:00Z")
	d := IdempotencyKey("other", "2024-01-01T00:00:00Z")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 36)
}

func TestNewRunInstance(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := NewRunInstance("p", "k", map[string]string{"b": "noop", "a": "stage"}, now)

	assert.Equal(t, OutcomeRunning, run.Outcome)
	assert.Equal(t, IdempotencyKey("p", "k"), run.IdempotencyKey)
	assert.NotEmpty(t, run.ExecutionID)
	assert.Equal(t, []string{"a", "b"}, run.TaskIDs())
	for _, ts := range run.Tasks {
		assert.Equal(t, StatusPending, ts.Status)
		assert.Zero(t, ts.Attempts)
	}
	assert.Equal(t, 2, run.Counts()[StatusPending])

	other := NewRunInstance("p", "k", map[string]string{"a": "stage"}, now)
	assert.NotEqual(t, run.ExecutionID, other.ExecutionID)
}

func TestRunInstanceClone(t *testing.T) {
	now := time.Now()
	run := NewRunInstance("p", "k", map[string]string{"a": "stage"}, now)
	run.Tasks["a"].LastError = &ErrorInfo{Kind: "TIMEOUT", Failures: []string{"x"}}
	run.Tasks["a"].StartedAt = &now

	clone := run.Clone()
	clone.Tasks["a"].Status = StatusFailed
	clone.Tasks["a"].LastError.Failures[0] = "y"

	assert.Equal(t, StatusPending, run.Tasks["a"].Status)
	assert.Equal(t, "x", run.Tasks["a"].LastError.Failures[0])
}

func TestNewErrorInfo(t *testing.T) {
	assert.Nil(t, NewErrorInfo(nil))

	plain := NewErrorInfo(fmt.Errorf("boom"))
	require.NotNil(t, plain)
	assert.Equal(t, string(etlerrors.KindConnectionTransient), plain.Kind)
	assert.Equal(t, "boom", plain.Message)

	q := NewErrorInfo(etlerrors.NewQualityAssertionError("check", 3, []string{"c1", "c2"}))
	assert.Equal(t, string(etlerrors.KindQualityAssertionFailed), q.Kind)
	assert.Equal(t, []string{"c1", "c2"}, q.Failures)

	up := NewErrorInfo(etlerrors.NewUpstreamFailedError("stage", fmt.Errorf("denied")))
	assert.Equal(t, string(etlerrors.KindUpstreamFailed), up.Kind)
	assert.Equal(t, "stage", up.Upstream)
	assert.Contains(t, up.Message, "denied")
}
