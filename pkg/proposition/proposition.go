// Package proposition computes which instances to kill and how many to
// start when a run-spec is scaled, partially decommissioned, or both.
package proposition

import (
	"sort"
	"time"

	"github.com/cuemby/glide/pkg/types"
)

// ConstraintResolver narrows a free set of instances down to the ones a
// host-placement constraint additionally forces to be killed. It is the
// (external) scheduler's say in which instances must go regardless of
// kill-selection policy.
type ConstraintResolver func(available []types.Instance, need int) []types.Instance

// Result is the outcome of a scaling proposition: the ordered instances to
// kill and the number of new instances to start, if any.
type Result struct {
	ToKill  []types.Instance
	ToStart int
}

// Propose implements §4.2's scaling-proposition algorithm.
func Propose(
	instances []types.Instance,
	forcedDecommission map[string]bool,
	meetConstraints ConstraintResolver,
	scaleTo int,
	killSelection types.KillSelection,
) Result {
	goalRunning := make(map[string]types.Instance)
	var order []string // goalRunning's ids in input order
	killingCount := 0
	for _, inst := range instances {
		if inst.State.Goal == types.GoalRunning {
			if _, seen := goalRunning[inst.InstanceID]; !seen {
				order = append(order, inst.InstanceID)
			}
			goalRunning[inst.InstanceID] = inst
		}
		if inst.State.Condition == types.ConditionKilling {
			killingCount++
		}
	}

	var sentenced, free []types.Instance
	for _, id := range order {
		inst := goalRunning[id]
		if forcedDecommission != nil && forcedDecommission[inst.InstanceID] {
			sentenced = append(sentenced, inst)
		} else {
			free = append(free, inst)
		}
	}

	decommissionCount := len(goalRunning) - killingCount - scaleTo
	if decommissionCount < len(sentenced) {
		decommissionCount = len(sentenced)
	}

	needFromConstraints := decommissionCount - len(sentenced)
	var constraintKills []types.Instance
	if meetConstraints != nil && needFromConstraints > 0 {
		constraintKills = meetConstraints(free, needFromConstraints)
	}

	rest := subtract(free, constraintKills)
	sort.SliceStable(rest, func(i, j int) bool {
		return less(rest[i], rest[j], killSelection)
	})

	candidates := append(append(append([]types.Instance{}, sentenced...), constraintKills...), rest...)
	if decommissionCount > len(candidates) {
		decommissionCount = len(candidates)
	}
	toKill := candidates[:decommissionCount]

	toStart := scaleTo - len(goalRunning) + decommissionCount
	if toStart < 0 {
		toStart = 0
	}

	return Result{ToKill: toKill, ToStart: toStart}
}

func subtract(all, remove []types.Instance) []types.Instance {
	excluded := make(map[string]bool, len(remove))
	for _, inst := range remove {
		excluded[inst.InstanceID] = true
	}
	var rest []types.Instance
	for _, inst := range all {
		if !excluded[inst.InstanceID] {
			rest = append(rest, inst)
		}
	}
	return rest
}

// less implements sortByConditionAndDate: ascending by condition weight,
// then by a condition-specific timestamp, with killSelection breaking
// remaining ties. It is total (never panics); instances with equal
// timestamps compare as equivalent, so a stable sort keeps them in input
// order and Propose's output is deterministic for a given input.
func less(a, b types.Instance, killSelection types.KillSelection) bool {
	wa, wb := a.State.Condition.ConditionWeight(), b.State.Condition.ConditionWeight()
	if wa != wb {
		return wa < wb
	}

	ta := timestampFor(a)
	tb := timestampFor(b)
	if ta.Equal(tb) {
		return false // equal-and-arbitrary: preserve input order (stable sort)
	}

	switch killSelection {
	case types.KillSelectionYoungestFirst:
		return ta.After(tb)
	default: // types.KillSelectionOldestFirst, or unset
		return ta.Before(tb)
	}
}

func timestampFor(inst types.Instance) time.Time {
	switch inst.State.Condition {
	case types.ConditionStaging:
		return inst.State.LatestStagedAt()
	case types.ConditionStarting:
		return inst.State.Since
	default:
		return inst.State.ActiveSince
	}
}
