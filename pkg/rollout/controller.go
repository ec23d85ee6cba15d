package rollout

import (
	"context"
	"sort"

	"github.com/cuemby/glide/pkg/events"
	"github.com/cuemby/glide/pkg/ignition"
	"github.com/cuemby/glide/pkg/killer"
	"github.com/cuemby/glide/pkg/launchqueue"
	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/metrics"
	"github.com/cuemby/glide/pkg/readiness"
	"github.com/cuemby/glide/pkg/tracker"
	"github.com/cuemby/glide/pkg/types"
	"github.com/rs/zerolog"
)

// DeploymentManager is notified of every readiness observation the
// controller collects, so the surrounding deployment plan can surface it.
type DeploymentManager interface {
	ReadinessCheckUpdate(pathID string, result readiness.Result)
}

// Controller is the replacement controller for a single RunSpec: it drives
// instances from whatever version is currently running to runSpec.Version,
// one ignition-sized batch and one rolling pass at a time. See doc.go for
// the mailbox/stash mechanics.
type Controller struct {
	deploymentManager DeploymentManager
	status            StatusReporter
	killService       killer.KillService
	launchQueue       launchqueue.LaunchQueue
	instanceTracker   tracker.Tracker
	eventBus          *events.Broker
	readinessExecutor readiness.Executor
	runSpec           types.RunSpec
	completionSignal  chan<- error

	mailbox chan message
	stash   []message
	phase   phase

	maxCapacity int

	instances       map[string]types.Instance
	instancesHealth map[string]bool
	instancesReady  map[string]bool

	subscriptions *readiness.Registry
	eventSub      events.Subscriber

	timer *metrics.Timer
	log   zerolog.Logger
}

// NewController builds a controller for runSpec. Call Start to seed its
// shadow state and begin processing; completionSignal is written to exactly
// once, with nil on success or the failure that stopped the rollout.
func NewController(
	deploymentManager DeploymentManager,
	status StatusReporter,
	killService killer.KillService,
	launchQueue launchqueue.LaunchQueue,
	instanceTracker tracker.Tracker,
	eventBus *events.Broker,
	readinessExecutor readiness.Executor,
	runSpec types.RunSpec,
	completionSignal chan<- error,
) *Controller {
	if status == nil {
		status = NopStatusReporter{}
	}
	return &Controller{
		deploymentManager: deploymentManager,
		status:            status,
		killService:       killService,
		launchQueue:       launchQueue,
		instanceTracker:   instanceTracker,
		eventBus:          eventBus,
		readinessExecutor: readinessExecutor,
		runSpec:           runSpec,
		completionSignal:  completionSignal,

		mailbox:         make(chan message, 64),
		instances:       make(map[string]types.Instance),
		instancesHealth: make(map[string]bool),
		instancesReady:  make(map[string]bool),
		subscriptions:   readiness.NewRegistry(),

		log: log.WithRunSpec(runSpec.PathID, runSpec.Version),
	}
}

// Start seeds the controller's shadow state from the tracker, computes the
// ignition strategy, subscribes to the event bus, and begins the mailbox
// loop on a background goroutine. ctx bounds the controller's entire
// lifetime; cancelling it fails the completion signal with ctx.Err().
func (c *Controller) Start(ctx context.Context) {
	c.timer = metrics.NewTimer()

	for _, inst := range c.instanceTracker.SpecInstancesSync(c.runSpec.PathID) {
		c.instances[inst.InstanceID] = inst
	}

	c.eventSub = c.eventBus.Subscribe()
	c.launchQueue.ResetDelay(c.runSpec)

	runningOld := 0
	for _, inst := range c.instances {
		if c.isOld(inst) && inst.State.Goal == types.GoalRunning {
			runningOld++
		}
	}
	strategy := ignition.Compute(c.runSpec, runningOld)
	c.maxCapacity = strategy.MaxCapacity

	c.phase = phaseKilling
	c.reportPhase()

	go c.forwardEvents(ctx)
	go c.run(ctx)

	c.mailbox <- killImmediatelyMsg{n: strategy.NrToKillImmediately}
}

// isOld reports whether inst belongs to a version other than this
// controller's target. RunSpec.Version is an opaque string with no defined
// ordering in this data model, so "older than target" reduces to "not the
// target version" — there is never more than one prior version in flight
// for a given controller.
func (c *Controller) isOld(inst types.Instance) bool {
	return inst.RunSpecVersion != c.runSpec.Version
}

func (c *Controller) self(m message) {
	c.mailbox <- m
}

func (c *Controller) reportPhase() {
	c.status.PhaseChanged(c.runSpec.PathID, c.phase.String())
}

func (c *Controller) forwardEvents(ctx context.Context) {
	for {
		select {
		case ev, ok := <-c.eventSub:
			if !ok {
				return
			}
			if ic := ev.InstanceChanged; ic != nil && ic.PathID == c.runSpec.PathID {
				c.mailbox <- instanceChangedMsg{instance: ic.Instance}
			}
			if hc := ev.InstanceHealthChanged; hc != nil && hc.PathID == c.runSpec.PathID {
				c.mailbox <- instanceHealthChangedMsg{instanceID: hc.InstanceID, healthy: hc.Healthy}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) run(ctx context.Context) {
	for {
		var m message
		if c.phase == phaseUpdating && len(c.stash) > 0 {
			m = c.stash[0]
			c.stash = c.stash[1:]
		} else {
			select {
			case m = <-c.mailbox:
			case <-ctx.Done():
				c.complete(ctx.Err())
				return
			}
		}
		if c.dispatch(ctx, m) {
			return
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, m message) bool {
	if f, ok := m.(failMsg); ok {
		c.complete(f.err)
		return true
	}

	switch c.phase {
	case phaseUpdating:
		return c.handleUpdating(m)
	case phaseChecking:
		return c.handleChecking(m)
	case phaseKilling:
		return c.handleKilling(ctx, m)
	case phaseLaunching:
		return c.handleLaunching(ctx, m)
	default:
		return true
	}
}

func (c *Controller) complete(err error) {
	c.phase = phaseTerminal
	c.reportPhase()

	c.eventBus.Unsubscribe(c.eventSub)
	c.subscriptions.UnsubscribeAll()
	metrics.ReadinessSubscriptionsActive.WithLabelValues(c.runSpec.PathID).Set(0)
	if c.timer != nil {
		c.timer.ObserveDurationVec(metrics.RolloutDuration, c.runSpec.PathID)
	}

	if err != nil {
		c.log.Error().Err(err).Msg("rollout failed")
	} else {
		c.log.Info().Msg("rollout complete")
	}
	c.completionSignal <- err
}

// handleUpdating processes the four event types §4.4 assigns to this
// phase; every other message is deferred to the stash.
func (c *Controller) handleUpdating(m message) bool {
	switch msg := m.(type) {
	case instanceChangedMsg:
		c.instances[msg.instance.InstanceID] = msg.instance
		c.enterChecking()

	case instanceHealthChangedMsg:
		if msg.healthy == nil {
			delete(c.instancesHealth, msg.instanceID)
		} else {
			c.instancesHealth[msg.instanceID] = *msg.healthy
		}
		c.enterChecking()

	case readinessResultMsg:
		if c.deploymentManager != nil {
			c.deploymentManager.ReadinessCheckUpdate(c.runSpec.PathID, msg.result)
		}
		if msg.result.Ready {
			if id, ok := c.instanceForTask(msg.key.TaskID); ok {
				c.instancesReady[id] = true
			}
			c.subscriptions.Unsubscribe(msg.key)
			metrics.ReadinessSubscriptionsActive.WithLabelValues(c.runSpec.PathID).Set(float64(c.subscriptions.Len()))
		}
		c.enterChecking()

	case readinessStreamDoneMsg:
		if msg.err != nil {
			c.log.Error().Err(msg.err).Str("task_id", msg.key.TaskID).Str("check", msg.key.CheckName).
				Msg("readiness stream ended unexpectedly")
		}
		metrics.ReadinessSubscriptionsActive.WithLabelValues(c.runSpec.PathID).Set(float64(c.subscriptions.Len()))
		c.enterChecking()

	default:
		c.stash = append(c.stash, m)
	}
	return false
}

func (c *Controller) enterChecking() {
	c.phase = phaseChecking
	c.reportPhase()
	c.self(checkMsg{})
}

func (c *Controller) instanceForTask(taskID string) (string, bool) {
	for id, inst := range c.instances {
		if _, ok := inst.State.TasksMap[taskID]; ok {
			return id, true
		}
	}
	return "", false
}

// handleChecking evaluates the completion invariant (§4.5) and either
// fulfils the completion signal or moves on to another kill pass.
func (c *Controller) handleChecking(m message) bool {
	if _, ok := m.(checkMsg); !ok {
		c.stash = append(c.stash, m)
		return false
	}

	if c.isComplete() {
		c.complete(nil)
		return true
	}

	c.phase = phaseKilling
	c.reportPhase()
	c.self(killNextMsg{})
	return false
}

func (c *Controller) isComplete() bool {
	for _, inst := range c.instances {
		if c.isOld(inst) && !(inst.State.Condition.ConsiderTerminal() && inst.State.Goal != types.GoalRunning) {
			return false
		}
	}

	newActive := 0
	for id, inst := range c.instances {
		if c.isOld(inst) {
			continue
		}
		if !inst.State.Condition.IsActive() || inst.State.Goal != types.GoalRunning {
			continue
		}
		if c.runSpec.HasHealthChecks() && !c.instancesHealth[id] {
			continue
		}
		if c.runSpec.HasReadinessChecks() && !c.instancesReady[id] {
			continue
		}
		newActive++
	}

	return newActive == c.runSpec.TargetInstances
}

// handleKilling processes KillImmediately/KillNext/Killed per §4.4.
func (c *Controller) handleKilling(ctx context.Context, m message) bool {
	switch msg := m.(type) {
	case killImmediatelyMsg:
		go c.runKills(ctx, c.selectOld(msg.n))

	case killNextMsg:
		go c.runKills(ctx, c.selectOld(1))

	case killedMsg:
		for _, id := range msg.ids {
			if inst, ok := c.instances[id]; ok {
				inst.State.Goal = types.GoalStopped
				c.instances[id] = inst
			}
		}
		c.phase = phaseLaunching
		c.reportPhase()
		c.self(scheduleReadinessMsg{})

	default:
		c.stash = append(c.stash, m)
	}
	return false
}

// selectOld picks up to n running old-version instances, in a
// deterministic order (condition weight, then active-since, then id) so
// repeated runs over the same shadow state make the same choice.
func (c *Controller) selectOld(n int) []types.Instance {
	if n <= 0 {
		return nil
	}

	var candidates []types.Instance
	for _, inst := range c.instances {
		if c.isOld(inst) && inst.State.Goal == types.GoalRunning {
			candidates = append(candidates, inst)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if wa, wb := a.State.Condition.ConditionWeight(), b.State.Condition.ConditionWeight(); wa != wb {
			return wa < wb
		}
		if !a.State.ActiveSince.Equal(b.State.ActiveSince) {
			return a.State.ActiveSince.Before(b.State.ActiveSince)
		}
		return a.InstanceID < b.InstanceID
	})

	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

// runKills folds killOne over doomed sequentially, awaiting each before
// starting the next, then self-reports the batch that succeeded.
func (c *Controller) runKills(ctx context.Context, doomed []types.Instance) {
	ids := make([]string, 0, len(doomed))
	for _, inst := range doomed {
		if err := c.killOne(ctx, inst); err != nil {
			c.mailbox <- failMsg{err: err}
			return
		}
		ids = append(ids, inst.InstanceID)
	}
	c.mailbox <- killedMsg{ids: ids}
}

func (c *Controller) killOne(ctx context.Context, inst types.Instance) error {
	cur, ok, err := c.instanceTracker.Get(ctx, inst.InstanceID)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Warn().Str("instance_id", inst.InstanceID).Msg("killOne: instance already gone from tracker")
		return nil
	}

	goal := types.GoalDecommissioned
	if c.runSpec.IsResident {
		goal = types.GoalStopped
	}
	if err := c.instanceTracker.SetGoal(ctx, cur.InstanceID, goal); err != nil {
		return err
	}
	if err := c.killService.KillInstance(ctx, cur, types.KillReasonUpgrading); err != nil {
		return err
	}

	metrics.InstancesKilledTotal.WithLabelValues(c.runSpec.PathID, string(types.KillReasonUpgrading)).Inc()
	return nil
}

// handleLaunching processes ScheduleReadiness/LaunchNext/Scheduled per §4.4.
func (c *Controller) handleLaunching(ctx context.Context, m message) bool {
	switch msg := m.(type) {
	case scheduleReadinessMsg:
		if c.runSpec.HasReadinessChecks() {
			c.scheduleReadiness(ctx)
		}
		c.self(launchNextMsg{})

	case launchNextMsg:
		oldOutstanding, newStarted := c.launchCounts()
		go c.runLaunch(ctx, oldOutstanding, newStarted)

	case scheduledMsg:
		for _, inst := range msg.instances {
			inst.RunSpecVersion = c.runSpec.Version
			inst.State.Goal = types.GoalRunning
			c.instances[inst.InstanceID] = inst
		}
		if len(msg.instances) > 0 {
			metrics.InstancesLaunchedTotal.WithLabelValues(c.runSpec.PathID).Add(float64(len(msg.instances)))
		}
		c.phase = phaseUpdating
		c.reportPhase()

	default:
		c.stash = append(c.stash, m)
	}
	return false
}

func (c *Controller) launchCounts() (oldOutstanding, newStarted int) {
	oldTerminal := 0
	oldTotal := 0
	for _, inst := range c.instances {
		if c.isOld(inst) {
			oldTotal++
			if inst.State.Condition.ConsiderTerminal() && inst.State.Goal != types.GoalRunning {
				oldTerminal++
			}
		} else if inst.State.Goal == types.GoalRunning {
			newStarted++
		}
	}
	return oldTotal - oldTerminal, newStarted
}

func (c *Controller) scheduleReadiness(ctx context.Context) {
	var candidates []types.Instance
	for id, inst := range c.instances {
		if c.isOld(inst) {
			continue
		}
		if !inst.State.Condition.IsActive() || inst.State.Goal != types.GoalRunning {
			continue
		}
		if _, scheduled := c.instancesReady[id]; scheduled {
			continue
		}
		candidates = append(candidates, inst)
	}
	if len(candidates) == 0 {
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].InstanceID < candidates[j].InstanceID })
	candidate := candidates[0]

	for taskID, task := range candidate.State.TasksMap {
		for _, spec := range task.ReadinessChecks {
			key := readiness.Key{TaskID: taskID, CheckName: spec.Name}
			c.subscriptions.Subscribe(ctx, c.readinessExecutor, key, spec,
				func(k readiness.Key, r readiness.Result) { c.mailbox <- readinessResultMsg{key: k, result: r} },
				func(k readiness.Key, err error) { c.mailbox <- readinessStreamDoneMsg{key: k, err: err} },
			)
		}
	}
	c.instancesReady[candidate.InstanceID] = false
	metrics.ReadinessSubscriptionsActive.WithLabelValues(c.runSpec.PathID).Set(float64(c.subscriptions.Len()))
}

func (c *Controller) runLaunch(ctx context.Context, oldOutstanding, newStarted int) {
	leftCapacity := c.maxCapacity - oldOutstanding - newStarted
	if leftCapacity < 0 {
		leftCapacity = 0
	}
	want := c.runSpec.TargetInstances - newStarted
	if want < 0 {
		want = 0
	}
	n := want
	if leftCapacity < n {
		n = leftCapacity
	}
	if n <= 0 {
		c.mailbox <- scheduledMsg{}
		return
	}

	instances, err := c.launchQueue.AddWithReply(ctx, c.runSpec, n)
	if err != nil {
		c.mailbox <- failMsg{err: err}
		return
	}
	c.mailbox <- scheduledMsg{instances: instances}
}
