package types

import "time"

// RunSpec is one immutable version of a workload definition.
type RunSpec struct {
	PathID          string
	Version         string
	TargetInstances int
	UpgradeStrategy UpgradeStrategy
	// IsResident is true when instances bind to persistent local state and
	// therefore may only be stopped, never relocated or over-provisioned.
	IsResident      bool
	HealthCheck     *HealthCheckSpec
	ReadinessChecks []ReadinessCheckSpec
}

// HasReadinessChecks reports whether this RunSpec gates completion on
// application-level readiness in addition to health.
func (r RunSpec) HasReadinessChecks() bool {
	return len(r.ReadinessChecks) > 0
}

// HasHealthChecks reports whether this RunSpec gates completion on health.
func (r RunSpec) HasHealthChecks() bool {
	return r.HealthCheck != nil
}

// UpgradeStrategy bounds how far a rolling replacement may deviate from
// the RunSpec's target instance count while it is in flight.
type UpgradeStrategy struct {
	// MinimumHealthCapacity is the fraction (0..1) of TargetInstances that
	// must remain healthy at every point during the replacement.
	MinimumHealthCapacity float64
	// MaximumOverCapacity is the fraction (>=0) of TargetInstances the
	// controller may temporarily exceed while a replacement is starting.
	MaximumOverCapacity float64
}

// HealthCheckSpec describes the health probe instances of a RunSpec carry.
type HealthCheckSpec struct {
	Name     string
	Timeout  time.Duration
	Interval time.Duration
}

// ReadinessCheckSpec describes an application-level readiness probe,
// evaluated once an instance is healthy, used as a traffic-readiness gate.
// Target/Service address a gRPC health-checking-protocol endpoint; see
// pkg/readiness for the executor that drives these.
type ReadinessCheckSpec struct {
	Name    string
	Target  string
	Service string
}

// Goal is the operator's intent for an instance, distinct from its
// observed Condition.
type Goal string

const (
	GoalRunning        Goal = "running"
	GoalStopped        Goal = "stopped"
	GoalDecommissioned Goal = "decommissioned"
)

// Condition is the observed lifecycle state of an instance.
type Condition string

const (
	ConditionProvisioned Condition = "provisioned"
	ConditionStaging     Condition = "staging"
	ConditionStarting    Condition = "starting"
	ConditionRunning     Condition = "running"
	ConditionKilling     Condition = "killing"
	ConditionUnreachable Condition = "unreachable"
	ConditionFailed      Condition = "failed"
	ConditionFinished    Condition = "finished"
)

// IsActive reports whether the condition is non-terminal: the instance is
// still doing something on the way to Running or on the way to gone.
func (c Condition) IsActive() bool {
	switch c {
	case ConditionFailed, ConditionFinished:
		return false
	default:
		return true
	}
}

// ConsiderTerminal reports whether the condition should be treated as a
// dead end for completion-invariant purposes: the instance will not
// transition back to Running on its own.
func (c Condition) ConsiderTerminal() bool {
	switch c {
	case ConditionFailed, ConditionFinished, ConditionUnreachable:
		return true
	default:
		return false
	}
}

// ConditionWeight orders conditions for kill selection: ascending, so a
// smaller weight is killed first. Unset/unknown conditions sort last.
func (c Condition) ConditionWeight() int {
	switch c {
	case ConditionUnreachable:
		return 1
	case ConditionStaging:
		return 2
	case ConditionStarting:
		return 3
	case ConditionRunning:
		return 4
	default:
		return 5
	}
}

// Task is a single task belonging to an instance; instances that run more
// than one process (e.g. sidecars) carry one Task per process.
type Task struct {
	ID              string
	StagedAt        time.Time
	ReadinessChecks []ReadinessCheckSpec
}

// InstanceState is the mutable portion of an Instance: what the operator
// wants (Goal), what has been observed (Condition, Healthy), and when.
type InstanceState struct {
	Goal        Goal
	Condition   Condition
	Healthy     *bool // nil: unreported
	ActiveSince time.Time
	Since       time.Time
	TasksMap    map[string]Task
}

// LatestStagedAt returns the latest StagedAt across the instance's tasks,
// used by the kill-ordering comparator for instances still Staging.
func (s InstanceState) LatestStagedAt() time.Time {
	var latest time.Time
	for _, t := range s.TasksMap {
		if t.StagedAt.After(latest) {
			latest = t.StagedAt
		}
	}
	return latest
}

// Instance is one running (or dying) copy of a RunSpec.
type Instance struct {
	InstanceID     string
	RunSpecVersion string
	State          InstanceState
}

// RestartStrategy is the ignition-strategy calculator's output: the
// initial kill batch and the working capacity ceiling for a replacement.
type RestartStrategy struct {
	NrToKillImmediately int
	MaxCapacity         int
}

// KillReason is passed to the Kill Service so it can distinguish an
// operator-requested shutdown from an upgrade-driven termination.
type KillReason string

const (
	KillReasonUpgrading KillReason = "upgrading"
)

// KillSelection breaks ties between kill candidates of otherwise equal
// rank (see pkg/proposition's sortByConditionAndDate).
type KillSelection string

const (
	KillSelectionYoungestFirst KillSelection = "youngest-first"
	KillSelectionOldestFirst   KillSelection = "oldest-first"
)
