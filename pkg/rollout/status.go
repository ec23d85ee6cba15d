package rollout

import "github.com/cuemby/glide/pkg/metrics"

// StatusReporter is notified of every phase transition. Implementations
// must not block the controller goroutine.
type StatusReporter interface {
	PhaseChanged(pathID, phase string)
}

// NopStatusReporter discards phase transitions; useful for tests and
// callers that only care about the completion signal.
type NopStatusReporter struct{}

func (NopStatusReporter) PhaseChanged(string, string) {}

// MetricsStatusReporter reports phase transitions to glide_rollout_phase,
// maintaining the invariant that exactly one phase value reads 1 per path
// at a time.
type MetricsStatusReporter struct{}

func (MetricsStatusReporter) PhaseChanged(pathID, current string) {
	for _, p := range phaseNames {
		v := 0.0
		if p == current {
			v = 1
		}
		metrics.RolloutPhase.WithLabelValues(pathID, p).Set(v)
	}
}
