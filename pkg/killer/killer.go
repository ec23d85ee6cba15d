package killer

import (
	"context"

	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/types"
)

// KillService performs the actual termination of an instance.
type KillService interface {
	KillInstance(ctx context.Context, instance types.Instance, reason types.KillReason) error
}

// Logging is a reference KillService for tests and cmd/glide's demo
// driver: it records the kill and reports success, standing in for the
// SIGTERM-then-delete sequence a real runtime driver performs (see
// worker.stopContainer for that sequence in the ancestor codebase).
type Logging struct{}

// New returns a Logging kill service.
func New() Logging { return Logging{} }

func (Logging) KillInstance(_ context.Context, instance types.Instance, reason types.KillReason) error {
	componentLog := log.WithComponent("killer")
	componentLog.Info().
		Str("instance_id", instance.InstanceID).
		Str("reason", string(reason)).
		Msg("killing instance")
	return nil
}
