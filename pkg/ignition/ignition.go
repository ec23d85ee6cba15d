// Package ignition computes the initial kill batch and working capacity
// ceiling for a rolling replacement, given a RunSpec and the number of
// instances currently running on its previous version.
package ignition

import (
	"fmt"
	"math"

	"github.com/cuemby/glide/pkg/types"
)

// Compute derives the RestartStrategy for a replacement about to begin.
//
// Preconditions (violations panic — they are caller bugs, never runtime
// conditions; spec.md §7 treats ignition precondition violations as
// "abort at construction"): runSpec.TargetInstances > 0, runningCount >= 0.
func Compute(runSpec types.RunSpec, runningCount int) types.RestartStrategy {
	if runSpec.TargetInstances <= 0 {
		panic(fmt.Sprintf("ignition: TargetInstances must be > 0, got %d", runSpec.TargetInstances))
	}
	if runningCount < 0 {
		panic(fmt.Sprintf("ignition: runningCount must be >= 0, got %d", runningCount))
	}

	t := float64(runSpec.TargetInstances)
	minHealthy := int(math.Ceil(t * runSpec.UpgradeStrategy.MinimumHealthCapacity))
	maxCapacity := int(math.Floor(t * (1 + runSpec.UpgradeStrategy.MaximumOverCapacity)))

	nrToKillImmediately := runningCount - minHealthy
	if nrToKillImmediately < 0 {
		nrToKillImmediately = 0
	}

	// Corner case: there is no slack to kill from (runningCount is exactly
	// at the healthy floor) and no room above it either
	// (minHealthy == maxCapacity == runningCount). A pure upgrade is
	// impossible without intervention. Scale-down replacements
	// (runningCount above minHealthy) already carry their own kill batch
	// and are excluded — see spec.md §8's over-capacity scenario, which
	// leaves maxCapacity untouched even though minHealthy == maxCapacity
	// there too. Below the floor there is already room to launch, so the
	// strategy is left as computed.
	if minHealthy == maxCapacity && runningCount == minHealthy {
		if runSpec.IsResident {
			// Stateful instances cannot tolerate over-capacity: drop one
			// below healthy instead.
			nrToKillImmediately = runningCount - minHealthy + 1
		} else {
			// Permit one transient extra instance instead.
			maxCapacity++
		}
	}

	strategy := types.RestartStrategy{
		NrToKillImmediately: nrToKillImmediately,
		MaxCapacity:         maxCapacity,
	}

	assertPostconditions(strategy, minHealthy, runningCount)
	return strategy
}

func assertPostconditions(s types.RestartStrategy, minHealthy, runningCount int) {
	if s.NrToKillImmediately < 0 {
		panic("ignition: nrToKillImmediately went negative")
	}
	if s.MaxCapacity <= 0 {
		panic("ignition: maxCapacity must be positive")
	}
}
