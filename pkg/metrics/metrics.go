package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RolloutPhase reports the current phase of each in-flight rollout as
	// a gauge set to 1 for the active phase and 0 for the others, keyed by
	// path_id and phase name.
	RolloutPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glide_rollout_phase",
			Help: "Current controller phase per path (1 = active phase, 0 = inactive)",
		},
		[]string{"path_id", "phase"},
	)

	InstancesKilledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glide_instances_killed_total",
			Help: "Total number of instances the controller has sent for kill, by path and reason",
		},
		[]string{"path_id", "reason"},
	)

	InstancesLaunchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glide_instances_launched_total",
			Help: "Total number of instances the controller has requested from the launch queue, by path",
		},
		[]string{"path_id"},
	)

	ReadinessSubscriptionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "glide_readiness_subscriptions_active",
			Help: "Number of readiness check streams currently subscribed, by path",
		},
		[]string{"path_id"},
	)

	RolloutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glide_rollout_duration_seconds",
			Help:    "Wall-clock time from a rollout's first ignition to its terminal condition",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path_id"},
	)
)

func init() {
	prometheus.MustRegister(RolloutPhase)
	prometheus.MustRegister(InstancesKilledTotal)
	prometheus.MustRegister(InstancesLaunchedTotal)
	prometheus.MustRegister(ReadinessSubscriptionsActive)
	prometheus.MustRegister(RolloutDuration)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation and
// reports it to a histogram on completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started. Safe to
// call more than once; each call reflects the time of the call.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration reports the elapsed duration to an unlabeled histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec reports the elapsed duration to a histogram vector
// under the given label values.
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labelValues ...string) {
	histogramVec.WithLabelValues(labelValues...).Observe(t.Duration().Seconds())
}
