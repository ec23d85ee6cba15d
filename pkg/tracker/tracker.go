package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/types"
)

// Tracker is the authoritative store of instances. It is consumed, never
// owned, by the replacement controller — see spec.md §1/§6.
type Tracker interface {
	// SpecInstancesSync returns a synchronous snapshot of every instance
	// currently known for pathID. Used once, at controller startup.
	SpecInstancesSync(pathID string) []types.Instance

	// Get returns the current instance record, or ok=false if the tracker
	// has no record of it (already reaped).
	Get(ctx context.Context, instanceID string) (types.Instance, bool, error)

	// SetGoal records a new goal for instanceID. It does not wait for the
	// goal to take effect; effects are observed asynchronously via events.
	SetGoal(ctx context.Context, instanceID string, goal types.Goal) error
}

// InMemory is a reference Tracker implementation backed by a map, for
// tests and cmd/glide's demo driver. It is not concurrent-safe beyond its
// own mutex; it does not publish events itself — callers (the demo's
// simulated lifecycle driver) do that through pkg/events directly.
//
// types.Instance carries no pathID of its own (spec.md's data model scopes
// pathID to the RunSpec, not the Instance), so the tracker keeps its own
// instanceID -> pathID index, populated wherever an instance is stored,
// to answer SpecInstancesSync's per-path query.
type InMemory struct {
	mu        sync.RWMutex
	instances map[string]types.Instance
	paths     map[string]string
}

// NewInMemory creates an empty in-memory tracker.
func NewInMemory() *InMemory {
	return &InMemory{
		instances: make(map[string]types.Instance),
		paths:     make(map[string]string),
	}
}

// Seed installs an instance directly, bypassing SetGoal, for test/demo
// setup of an initial cluster state.
func (t *InMemory) Seed(pathID string, inst types.Instance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instances[inst.InstanceID] = inst
	t.paths[inst.InstanceID] = pathID
}

// Put installs or overwrites an instance record; used by the demo's
// lifecycle simulator to reflect launches/health changes into the
// tracker before publishing the corresponding event.
func (t *InMemory) Put(pathID string, inst types.Instance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instances[inst.InstanceID] = inst
	t.paths[inst.InstanceID] = pathID
}

// Remove deletes an instance record entirely, simulating the tracker
// reaping a terminated instance.
func (t *InMemory) Remove(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.instances, instanceID)
	delete(t.paths, instanceID)
}

func (t *InMemory) SpecInstancesSync(pathID string) []types.Instance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.Instance
	for id, inst := range t.instances {
		if t.paths[id] != pathID {
			continue
		}
		out = append(out, inst)
	}
	return out
}

func (t *InMemory) Get(_ context.Context, instanceID string) (types.Instance, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	inst, ok := t.instances[instanceID]
	if !ok {
		componentLog := log.WithComponent("tracker")
		componentLog.Warn().Str("instance_id", instanceID).Msg("get: no such instance")
		return types.Instance{}, false, nil
	}
	return inst, true, nil
}

func (t *InMemory) SetGoal(_ context.Context, instanceID string, goal types.Goal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	inst, ok := t.instances[instanceID]
	if !ok {
		return fmt.Errorf("tracker: setGoal: no such instance %q", instanceID)
	}
	inst.State.Goal = goal
	t.instances[instanceID] = inst
	return nil
}
