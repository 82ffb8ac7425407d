package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/energy-etl/internal/dag"
	"github.com/maxkimambo/energy-etl/internal/operators"
)

func TestMetrics_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	op := newScripted()
	op.behaviour["flaky"] = func(_ context.Context, attempt int) error {
		if attempt == 1 {
			return transient()
		}
		return nil
	}
	e, err := NewFromDefinitions([]dag.TaskDefinition{task("flaky"), task("after", "flaky")},
		op.registry(), operators.Clients{}, nil, WithConfig(testConfig()), WithMetrics(m))
	require.NoError(t, err)
	e.sleep = (&sleepRecorder{}).sleep

	res, err := e.Run(context.Background(), Trigger{Pipeline: "p", RunKey: "k"})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("p", "noop", "retry")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("p", "noop", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.taskOutcomes.WithLabelValues("p", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runOutcomes.WithLabelValues("p", "succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlightTasks))
}

func TestMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.runFinished("p", "failed", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.runOutcomes.WithLabelValues("p", "failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.attempt("p", "stage", "success", 0)
		m.taskFinished("p", "succeeded")
		m.runFinished("p", "succeeded", 0)
		m.inFlight(1)
	})
}
