package rollout

import (
	"github.com/cuemby/glide/pkg/readiness"
	"github.com/cuemby/glide/pkg/types"
)

// message is the envelope type for everything the controller's mailbox
// carries: events forwarded from the bus, readiness observations forwarded
// from the registry, and the controller's own self-sent phase-transition
// messages. A concrete message type is handled by at most one phase;
// anything else is stashed.
type message interface{}

// instanceChangedMsg mirrors events.InstanceChanged, scoped to this
// controller's pathID by the forwarding goroutine.
type instanceChangedMsg struct {
	instance types.Instance
}

// instanceHealthChangedMsg mirrors events.InstanceHealthChanged, scoped to
// this controller's pathID.
type instanceHealthChangedMsg struct {
	instanceID string
	healthy    *bool
}

type readinessResultMsg struct {
	key    readiness.Key
	result readiness.Result
}

type readinessStreamDoneMsg struct {
	key readiness.Key
	err error
}

// checkMsg re-enters the checking phase after any shadow-map mutation.
type checkMsg struct{}

type killImmediatelyMsg struct {
	n int
}

type killNextMsg struct{}

type killedMsg struct {
	ids []string
}

type scheduleReadinessMsg struct{}

type launchNextMsg struct{}

type scheduledMsg struct {
	instances []types.Instance
}

// failMsg carries a collaborator failure out of a background goroutine;
// handled ahead of the phase switch regardless of current phase.
type failMsg struct {
	err error
}
