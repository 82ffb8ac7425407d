package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine counters to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	attempts      *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	taskOutcomes  *prometheus.CounterVec
	runOutcomes   *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	inFlightTasks prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
// Collectors already registered by an earlier engine are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "energy_etl_task_attempts_total", Help: "Operator invocations by result (success, retry, failure)."},
			[]string{"pipeline", "kind", "result"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "energy_etl_task_attempt_duration_seconds", Help: "Duration of single operator invocations in seconds.", Buckets: prometheus.ExponentialBuckets(0.1, 4, 8)},
			[]string{"pipeline", "kind"},
		),
		taskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "energy_etl_task_final_status_total", Help: "Tasks by terminal status."},
			[]string{"pipeline", "status"},
		),
		runOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "energy_etl_runs_total", Help: "Pipeline runs by outcome."},
			[]string{"pipeline", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "energy_etl_run_duration_seconds", Help: "Duration of pipeline runs in seconds.", Buckets: prometheus.ExponentialBuckets(1, 3, 9)},
			[]string{"pipeline"},
		),
		inFlightTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "energy_etl_tasks_in_flight", Help: "Operator calls currently executing."},
		),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	if m.attempts, err = register(reg, m.attempts); err != nil {
		return nil, err
	}
	if m.taskDuration, err = register(reg, m.taskDuration); err != nil {
		return nil, err
	}
	if m.taskOutcomes, err = register(reg, m.taskOutcomes); err != nil {
		return nil, err
	}
	if m.runOutcomes, err = register(reg, m.runOutcomes); err != nil {
		return nil, err
	}
	if m.runDuration, err = register(reg, m.runDuration); err != nil {
		return nil, err
	}
	if m.inFlightTasks, err = register(reg, m.inFlightTasks); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (m *Metrics) attempt(pipeline, kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(pipeline, kind, result).Inc()
	m.taskDuration.WithLabelValues(pipeline, kind).Observe(d.Seconds())
}

func (m *Metrics) taskFinished(pipeline, status string) {
	if m == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(pipeline, status).Inc()
}

func (m *Metrics) runFinished(pipeline, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runOutcomes.WithLabelValues(pipeline, outcome).Inc()
	m.runDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlightTasks.Add(delta)
}
