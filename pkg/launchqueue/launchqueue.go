package launchqueue

import (
	"context"
	"time"

	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/types"
	"github.com/google/uuid"
)

// LaunchQueue accepts placement requests for a RunSpec and reports back
// the instances it scheduled.
type LaunchQueue interface {
	// AddWithReply requests n new instances of spec and returns their
	// records once scheduled.
	AddWithReply(ctx context.Context, spec types.RunSpec, n int) ([]types.Instance, error)
	// ResetDelay clears any backoff the queue is applying to spec, e.g.
	// after a scaling decision supersedes a previous one.
	ResetDelay(spec types.RunSpec)
}

// InMemory is a reference LaunchQueue: it mints instance records
// immediately, the way scheduler.scheduleService mints task records with
// a fresh UUID, but skips node selection entirely since placement is out
// of scope for the controller this queue serves.
type InMemory struct{}

// New returns an InMemory launch queue.
func New() InMemory { return InMemory{} }

func (InMemory) AddWithReply(_ context.Context, spec types.RunSpec, n int) ([]types.Instance, error) {
	if n <= 0 {
		return nil, nil
	}

	now := time.Now()
	out := make([]types.Instance, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New().String()
		taskID := uuid.New().String()
		out = append(out, types.Instance{
			InstanceID:     id,
			RunSpecVersion: spec.Version,
			State: types.InstanceState{
				Goal:        types.GoalRunning,
				Condition:   types.ConditionProvisioned,
				ActiveSince: now,
				Since:       now,
				TasksMap: map[string]types.Task{
					taskID: {
						ID:              taskID,
						StagedAt:        now,
						ReadinessChecks: spec.ReadinessChecks,
					},
				},
			},
		})
	}

	componentLog := log.WithComponent("launchqueue")
	componentLog.Info().
		Str("path_id", spec.PathID).
		Str("version", spec.Version).
		Int("count", n).
		Msg("scheduled instances")

	return out, nil
}

func (InMemory) ResetDelay(spec types.RunSpec) {
	componentLog := log.WithComponent("launchqueue")
	componentLog.Debug().
		Str("path_id", spec.PathID).
		Str("version", spec.Version).
		Msg("delay reset")
}
