// Package metrics counts validation outcomes in a Prometheus registry and
// writes them to a node-exporter textfile, so short CLI runs can be scraped
// without serving /metrics.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vinayprograms/planval/internal/validator"
)

const namespace = "planval"

// Recorder is a validator.Sink that records every result.
type Recorder struct {
	registry *prometheus.Registry
	textfile string
	mu       sync.Mutex // serialises textfile writes

	// PlansTotal counts validated plans by status.
	PlansTotal *prometheus.CounterVec
	// ConditionsTotal counts error log records by kind.
	ConditionsTotal *prometheus.CounterVec
	// ViolationsTotal counts hard trajectory violations by constraint kind.
	ViolationsTotal *prometheus.CounterVec
	// PreferenceViolationsTotal counts violations by preference name.
	PreferenceViolationsTotal *prometheus.CounterVec
	HappeningsTotal           prometheus.Counter
	DurationSeconds           *prometheus.HistogramVec
	// PlanValue is the metric value of the last run of each plan.
	PlanValue *prometheus.GaugeVec
}

// New creates a recorder with its own registry. When textfile is not
// empty the registry is written there after every recorded result.
func New(textfile string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		textfile: textfile,
		PlansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Validated plans by verdict",
		}, []string{"status"}),
		ConditionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conditions_total",
			Help:      "Consistency errors by kind",
		}, []string{"kind"}),
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trajectory_violations_total",
			Help:      "Hard trajectory constraint violations by constraint kind",
		}, []string{"kind"}),
		PreferenceViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_violations_total",
			Help:      "Preference violations by preference name",
		}, []string{"preference"}),
		HappeningsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "happenings_total",
			Help:      "Happenings applied across all plans",
		}),
		DurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Wall time spent validating one plan",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"status"}),
		PlanValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plan_value",
			Help:      "Metric value of the last validation of a plan",
		}, []string{"task", "plan"}),
	}
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Record implements validator.Sink.
func (r *Recorder) Record(_ context.Context, res *validator.Result) error {
	status := string(res.Status)
	r.PlansTotal.WithLabelValues(status).Inc()
	r.DurationSeconds.WithLabelValues(status).Observe(res.Duration.Seconds())
	r.HappeningsTotal.Add(float64(res.Happenings))

	for _, c := range res.Conditions {
		r.ConditionsTotal.WithLabelValues(string(c.Kind())).Inc()
	}
	for _, v := range res.Violations {
		if v.Preference == "" {
			r.ViolationsTotal.WithLabelValues(v.Kind).Inc()
		}
	}
	for name, n := range res.Preferences {
		r.PreferenceViolationsTotal.WithLabelValues(name).Add(float64(n))
	}
	if res.HasValue {
		r.PlanValue.WithLabelValues(res.Task, res.Plan).Set(res.Value)
	}

	if r.textfile == "" {
		return nil
	}
	return r.WriteTextfile(r.textfile)
}

// WriteTextfile writes the registry in the text exposition format. The
// file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
