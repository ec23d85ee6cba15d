package main

import (
	"context"
	"time"

	"github.com/cuemby/glide/pkg/events"
	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/tracker"
	"github.com/cuemby/glide/pkg/types"
	"github.com/google/uuid"
)

// demoInfra stands in for the reconciliation loop a real deployment would
// run alongside the controller: it applies the kill/launch requests the
// controller issues directly to the shared instance tracker and republishes
// the resulting state as InstanceChanged events, exactly the way an actual
// scheduler and its reconciler would report back asynchronously. Without
// this, an instance the controller asks to kill or launch never leaves
// ConditionProvisioned/ConditionRunning in the tracker and the rollout
// never reaches its completion condition.
type demoInfra struct {
	tracker *tracker.InMemory
	bus     *events.Broker
	pathID  string
}

func (d demoInfra) KillInstance(_ context.Context, instance types.Instance, reason types.KillReason) error {
	cur, ok, err := d.tracker.Get(context.Background(), instance.InstanceID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	cur.State.Condition = types.ConditionFinished
	cur.State.Since = time.Now()
	d.tracker.Put(d.pathID, cur)

	componentLog := log.WithComponent("demo-infra")
	componentLog.Info().
		Str("instance_id", cur.InstanceID).Str("reason", string(reason)).Msg("instance killed")

	d.bus.PublishInstanceChanged(events.InstanceChanged{
		InstanceID: cur.InstanceID,
		PathID:     d.pathID,
		Version:    cur.RunSpecVersion,
		Instance:   cur,
	})
	return nil
}

func (d demoInfra) AddWithReply(_ context.Context, spec types.RunSpec, n int) ([]types.Instance, error) {
	if n <= 0 {
		return nil, nil
	}

	now := time.Now()
	out := make([]types.Instance, 0, n)
	for i := 0; i < n; i++ {
		taskID := uuid.New().String()
		inst := types.Instance{
			InstanceID:     uuid.New().String(),
			RunSpecVersion: spec.Version,
			State: types.InstanceState{
				Goal:        types.GoalRunning,
				Condition:   types.ConditionRunning,
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
		}
		d.tracker.Put(d.pathID, inst)
		out = append(out, inst)

		componentLog := log.WithComponent("demo-infra")
		componentLog.Info().
			Str("instance_id", inst.InstanceID).Str("version", inst.RunSpecVersion).Msg("instance launched")

		d.bus.PublishInstanceChanged(events.InstanceChanged{
			InstanceID: inst.InstanceID,
			PathID:     d.pathID,
			Version:    inst.RunSpecVersion,
			Instance:   inst,
		})
	}
	return out, nil
}

func (d demoInfra) ResetDelay(types.RunSpec) {}
