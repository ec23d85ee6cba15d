package rollout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/glide/pkg/events"
	"github.com/cuemby/glide/pkg/killer"
	"github.com/cuemby/glide/pkg/readiness"
	"github.com/cuemby/glide/pkg/tracker"
	"github.com/cuemby/glide/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respondingKillService marks killed instances terminal in the tracker and
// publishes the resulting InstanceChanged, standing in for the
// infrastructure driver a real kill service would trigger.
type respondingKillService struct {
	tr  *tracker.InMemory
	bus *events.Broker
	pathID string
}

func (k respondingKillService) KillInstance(_ context.Context, instance types.Instance, _ types.KillReason) error {
	cur, ok, err := k.tr.Get(context.Background(), instance.InstanceID)
	if err != nil || !ok {
		return err
	}
	cur.State.Condition = types.ConditionFinished
	k.tr.Put(k.pathID, cur)
	k.bus.PublishInstanceChanged(events.InstanceChanged{
		InstanceID: cur.InstanceID,
		PathID:     k.pathID,
		Version:    cur.RunSpecVersion,
		Instance:   cur,
	})
	return nil
}

// respondingLaunchQueue installs each minted instance into the tracker as
// Running and publishes the resulting InstanceChanged.
type respondingLaunchQueue struct {
	tr  *tracker.InMemory
	bus *events.Broker
	pathID string
	next  int
}

func (q *respondingLaunchQueue) AddWithReply(_ context.Context, spec types.RunSpec, n int) ([]types.Instance, error) {
	now := time.Now()
	out := make([]types.Instance, 0, n)
	for i := 0; i < n; i++ {
		q.next++
		taskID := "task-" + itoa(q.next)
		inst := types.Instance{
			InstanceID:     "new-" + spec.Version + "-" + itoa(q.next),
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
		q.tr.Put(q.pathID, inst)
		out = append(out, inst)
		q.bus.PublishInstanceChanged(events.InstanceChanged{
			InstanceID: inst.InstanceID,
			PathID:     q.pathID,
			Version:    inst.RunSpecVersion,
			Instance:   inst,
		})
	}
	return out, nil
}

func (q *respondingLaunchQueue) ResetDelay(types.RunSpec) {}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type recordingDeploymentManager struct {
	updates []readiness.Result
}

func (r *recordingDeploymentManager) ReadinessCheckUpdate(_ string, result readiness.Result) {
	r.updates = append(r.updates, result)
}

func oldInstance(id, version string) types.Instance {
	now := time.Now()
	return types.Instance{
		InstanceID:     id,
		RunSpecVersion: version,
		State: types.InstanceState{
			Goal:        types.GoalRunning,
			Condition:   types.ConditionRunning,
			ActiveSince: now,
			Since:       now,
		},
	}
}

func runToCompletion(t *testing.T, runSpec types.RunSpec, tr *tracker.InMemory) error {
	t.Helper()

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	done := make(chan error, 1)
	c := NewController(
		&recordingDeploymentManager{},
		NopStatusReporter{},
		respondingKillService{tr: tr, bus: bus, pathID: runSpec.PathID},
		&respondingLaunchQueue{tr: tr, bus: bus, pathID: runSpec.PathID},
		tr,
		bus,
		readiness.NewFake(),
		runSpec,
		done,
	)
	c.Start(context.Background())

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("rollout never completed")
		return nil
	}
}

func TestController_HappyRollingRestart(t *testing.T) {
	tr := tracker.NewInMemory()
	for _, id := range []string{"old-1", "old-2", "old-3"} {
		tr.Seed("svc-a", oldInstance(id, "v1"))
	}

	runSpec := types.RunSpec{
		PathID:          "svc-a",
		Version:         "v2",
		TargetInstances: 3,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0},
	}

	err := runToCompletion(t, runSpec, tr)
	require.NoError(t, err)

	newRunning := 0
	for _, inst := range tr.SpecInstancesSync("svc-a") {
		if inst.RunSpecVersion == "v2" && inst.State.Goal == types.GoalRunning {
			newRunning++
		}
		if inst.RunSpecVersion == "v1" {
			assert.NotEqual(t, types.GoalRunning, inst.State.Goal)
		}
	}
	assert.Equal(t, 3, newRunning)
}

func TestController_ResidentTightUpgrade(t *testing.T) {
	tr := tracker.NewInMemory()
	tr.Seed("svc-b", oldInstance("old-1", "v1"))
	tr.Seed("svc-b", oldInstance("old-2", "v1"))

	runSpec := types.RunSpec{
		PathID:          "svc-b",
		Version:         "v2",
		TargetInstances: 2,
		IsResident:      true,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0},
	}

	err := runToCompletion(t, runSpec, tr)
	require.NoError(t, err)

	newRunning := 0
	for _, inst := range tr.SpecInstancesSync("svc-b") {
		if inst.RunSpecVersion == "v2" && inst.State.Goal == types.GoalRunning {
			newRunning++
		}
	}
	assert.Equal(t, 2, newRunning)
}

func TestController_OverCapacityScaleDown(t *testing.T) {
	tr := tracker.NewInMemory()
	for _, id := range []string{"old-1", "old-2", "old-3", "old-4"} {
		tr.Seed("svc-c", oldInstance(id, "v1"))
	}

	runSpec := types.RunSpec{
		PathID:          "svc-c",
		Version:         "v2",
		TargetInstances: 2,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 1.0, MaximumOverCapacity: 0},
	}

	err := runToCompletion(t, runSpec, tr)
	require.NoError(t, err)

	newRunning := 0
	for _, inst := range tr.SpecInstancesSync("svc-c") {
		if inst.RunSpecVersion == "v2" && inst.State.Goal == types.GoalRunning {
			newRunning++
		}
	}
	assert.Equal(t, 2, newRunning)
}

func TestController_TrackerReturnsNoneOnKill(t *testing.T) {
	tr := tracker.NewInMemory() // empty: the instance is in the shadow but not the tracker

	runSpec := types.RunSpec{
		PathID:          "svc-d",
		Version:         "v2",
		TargetInstances: 1,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 0, MaximumOverCapacity: 1},
	}

	bus := events.NewBroker()
	done := make(chan error, 1)
	c := NewController(
		&recordingDeploymentManager{}, NopStatusReporter{}, killer.New(),
		&respondingLaunchQueue{tr: tr, bus: bus, pathID: runSpec.PathID},
		tr, bus, readiness.NewFake(), runSpec, done,
	)

	gone := oldInstance("ghost", "v1")
	err := c.killOne(context.Background(), gone)
	require.NoError(t, err, "killOne treats a tracker miss as already-gone, not a failure")
}

func TestController_StashesEventDuringNonUpdatingPhase(t *testing.T) {
	tr := tracker.NewInMemory()
	tr.Seed("svc-e", oldInstance("old-1", "v1"))

	runSpec := types.RunSpec{
		PathID:          "svc-e",
		Version:         "v2",
		TargetInstances: 1,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 0, MaximumOverCapacity: 1},
	}

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	done := make(chan error, 1)
	c := NewController(
		&recordingDeploymentManager{}, NopStatusReporter{}, killer.New(),
		&respondingLaunchQueue{tr: tr, bus: bus, pathID: runSpec.PathID},
		tr, bus, readiness.NewFake(), runSpec, done,
	)

	c.phase = phaseKilling
	unrelated := instanceChangedMsg{instance: oldInstance("ghost", "v1")}
	stopped := c.handleKilling(context.Background(), unrelated)
	assert.False(t, stopped)
	require.Len(t, c.stash, 1)
	assert.Equal(t, unrelated, c.stash[0])
}

func TestController_FailedKillFailsCompletion(t *testing.T) {
	tr := tracker.NewInMemory()
	tr.Seed("svc-f", oldInstance("old-1", "v1"))

	runSpec := types.RunSpec{
		PathID:          "svc-f",
		Version:         "v2",
		TargetInstances: 1,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 0, MaximumOverCapacity: 1},
	}

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	boom := errors.New("kill service unavailable")
	done := make(chan error, 1)
	c := NewController(
		&recordingDeploymentManager{}, NopStatusReporter{}, failingKillService{err: boom},
		&respondingLaunchQueue{tr: tr, bus: bus, pathID: runSpec.PathID},
		tr, bus, readiness.NewFake(), runSpec, done,
	)
	c.Start(context.Background())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("rollout never completed")
	}
}

type failingKillService struct{ err error }

func (f failingKillService) KillInstance(context.Context, types.Instance, types.KillReason) error {
	return f.err
}

// TestController_ReadinessGating exercises §8 scenario 4 end to end: the
// new instance only counts toward completion once its readiness stream
// reports ready, and scheduleReadiness's subscription must reach a task
// the launch queue actually populated.
func TestController_ReadinessGating(t *testing.T) {
	tr := tracker.NewInMemory()
	tr.Seed("svc-g", oldInstance("old-1", "v1"))

	runSpec := types.RunSpec{
		PathID:          "svc-g",
		Version:         "v2",
		TargetInstances: 1,
		UpgradeStrategy: types.UpgradeStrategy{MinimumHealthCapacity: 0, MaximumOverCapacity: 1},
		ReadinessChecks: []types.ReadinessCheckSpec{{Name: "ready-check"}},
	}

	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	fake := readiness.NewFake()
	done := make(chan error, 1)
	c := NewController(
		&recordingDeploymentManager{}, NopStatusReporter{},
		respondingKillService{tr: tr, bus: bus, pathID: runSpec.PathID},
		&respondingLaunchQueue{tr: tr, bus: bus, pathID: runSpec.PathID},
		tr, bus, fake, runSpec, done,
	)
	c.Start(context.Background())

	// The controller subscribes asynchronously once the new instance
	// appears, so resend until the registry has wired the fake's stream
	// up; Send is a harmless no-op before that.
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fake.Send("ready-check", readiness.Result{Ready: true})
			case <-stop:
				return
			}
		}
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("rollout never completed")
	}

	newRunning := 0
	for _, inst := range tr.SpecInstancesSync("svc-g") {
		if inst.RunSpecVersion == "v2" && inst.State.Goal == types.GoalRunning {
			newRunning++
		}
	}
	assert.Equal(t, 1, newRunning)
}
