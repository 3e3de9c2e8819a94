package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trial metrics
	trialDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inqsweep_trial_duration_seconds",
			Help:    "Wall time of a trial from submission to terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
		[]string{"stage", "status"},
	)

	trialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inqsweep_trials_total",
			Help: "Trials reaching a terminal status",
		},
		[]string{"stage", "status"}, // status: "succeeded"/"failed"
	)

	trialsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inqsweep_trials_skipped_total",
			Help: "Sweep entries skipped because their k-mesh was already submitted",
		},
		[]string{"stage"},
	)

	trialsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inqsweep_trials_in_flight",
			Help: "Trials submitted and not yet terminal",
		},
		[]string{"stage"},
	)

	launchWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inqsweep_launch_wait_duration_seconds",
			Help:    "Time a trial waited for the launch limiter and a free slot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18), // 1ms to ~2min
		},
	)

	trialRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inqsweep_trial_retries_total",
			Help: "Trial resubmissions made by the retry runner",
		},
	)

	// Stage metrics
	stageSelected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inqsweep_stage_selected_value",
			Help: "Value selected by the most recent completed stage",
		},
		[]string{"stage", "unit"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inqsweep_stage_duration_seconds",
			Help:    "Wall time of a sweep stage including its fan-in barrier",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		},
		[]string{"stage", "outcome"},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordTrial records a trial reaching a terminal status
func (c *Collector) RecordTrial(stage string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "succeeded"
	if !success {
		status = "failed"
	}
	trialDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
	trialsTotal.WithLabelValues(stage, status).Inc()
}

// RecordSkipped counts a duplicate-mesh entry that was not submitted
func (c *Collector) RecordSkipped(stage string) {
	if c == nil {
		return
	}
	trialsSkipped.WithLabelValues(stage).Inc()
}

// SetInFlight sets the number of outstanding trials for a stage
func (c *Collector) SetInFlight(stage string, n int) {
	if c == nil {
		return
	}
	trialsInFlight.WithLabelValues(stage).Set(float64(n))
}

// RecordLaunchWait records limiter and slot wait time
func (c *Collector) RecordLaunchWait(duration time.Duration) {
	if c == nil {
		return
	}
	launchWaitDuration.Observe(duration.Seconds())
}

// IncrementRetries counts one resubmission
func (c *Collector) IncrementRetries() {
	if c == nil {
		return
	}
	trialRetries.Inc()
}

// RecordStage records a finished stage; value is only set on success
func (c *Collector) RecordStage(stage string, duration time.Duration, success bool, value float64, unit string) {
	if c == nil {
		return
	}
	outcome := "selected"
	if !success {
		outcome = "failed"
	}
	stageDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
	if success {
		stageSelected.WithLabelValues(stage, unit).Set(value)
		c.logger.Debug("Stage metrics recorded", "stage", stage, "selected", value, "unit", unit)
	}
}
