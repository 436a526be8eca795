package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetricsOptions configures the login dispatch collectors.
type DispatchMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// DispatchMetrics counts dispatched login actions by outcome and measures their latency.
type DispatchMetrics struct {
	Actions  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewDispatchMetrics constructs and registers the dispatch collectors.
func NewDispatchMetrics(opts DispatchMetricsOptions) (*DispatchMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "login"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "actions_total",
		Help:      "Total number of dispatched login actions partitioned by action and outcome.",
	}, []string{"action", "outcome"})

	if err := reg.Register(actions); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register actions collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing actions collector has unexpected type %T", already.ExistingCollector)
		}
		actions = existing
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Histogram of login action latencies in seconds partitioned by action.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	if err := reg.Register(duration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register duration collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("existing duration collector has unexpected type %T", already.ExistingCollector)
		}
		duration = existing
	}

	return &DispatchMetrics{Actions: actions, Duration: duration}, nil
}

// ObserveDispatch records one completed action.
func (m *DispatchMetrics) ObserveDispatch(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if m.Actions != nil {
		m.Actions.WithLabelValues(action, outcome).Inc()
	}
	if m.Duration != nil {
		m.Duration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}
