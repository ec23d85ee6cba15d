/*
Package metrics defines and registers the Prometheus metrics exposed by
the rollout controller: which phase each path is in, how many instances
it has killed or launched, how many readiness streams are active, and
how long rollouts take end to end.

# Metrics Catalog

glide_rollout_phase{path_id, phase}:
  - Type: Gauge
  - 1 for the path's current phase, 0 for every other phase value seen
    for that path.

glide_instances_killed_total{path_id, reason}:
  - Type: Counter
  - Incremented once per instance the controller sends to the Kill
    Service, labeled with the KillReason.

glide_instances_launched_total{path_id}:
  - Type: Counter
  - Incremented once per instance requested from the Launch Queue.

glide_readiness_subscriptions_active{path_id}:
  - Type: Gauge
  - Mirrors readiness.Registry.Len() for the path's controller.

glide_rollout_duration_seconds{path_id}:
  - Type: Histogram
  - Observed once, when a rollout reaches a terminal condition.

# Usage

	timer := metrics.NewTimer()
	// ... run the rollout to completion ...
	timer.ObserveDurationVec(metrics.RolloutDuration, pathID)

Metrics are registered at package init via prometheus.MustRegister, and
metrics.Handler() is the promhttp handler a caller mounts at /metrics.
*/
package metrics
