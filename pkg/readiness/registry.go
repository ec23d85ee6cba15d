package readiness

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/glide/pkg/log"
	"github.com/cuemby/glide/pkg/types"
)

// Key identifies one running readiness probe.
type Key struct {
	TaskID    string
	CheckName string
}

// Result is a single readiness observation.
type Result struct {
	Ready     bool
	Message   string
	CheckedAt time.Time
}

// Executor is the Readiness Check Executor collaborator: given a check
// spec, it returns a lazy stream of results and a handle to cancel it.
// Exactly one value is ever sent on done, after which results is closed.
type Executor interface {
	Execute(ctx context.Context, spec types.ReadinessCheckSpec) (results <-chan Result, done <-chan error)
}

// Registry is the per-instance registry of running readiness streams and
// their cancellation handles, keyed by (taskID, checkName) per spec.md
// §4.3. It owns exactly one goroutine per active subscription and
// guarantees onStreamDone fires exactly once, whether the stream ended
// naturally or was cancelled via Unsubscribe.
type Registry struct {
	mu     sync.Mutex
	cancel map[Key]context.CancelFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cancel: make(map[Key]context.CancelFunc)}
}

// Subscribe starts a readiness stream for key and returns once it has
// been registered. onResult is invoked for every observation; onStreamDone
// fires exactly once when the stream ends, carrying a non-nil error only
// on an unexpected failure.
func (r *Registry) Subscribe(
	ctx context.Context,
	executor Executor,
	key Key,
	spec types.ReadinessCheckSpec,
	onResult func(Key, Result),
	onStreamDone func(Key, error),
) {
	streamCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if existing, ok := r.cancel[key]; ok {
		existing()
	}
	r.cancel[key] = cancel
	r.mu.Unlock()

	results, done := executor.Execute(streamCtx, spec)

	go func() {
		for {
			select {
			case res, ok := <-results:
				if !ok {
					continue
				}
				onResult(key, res)
			case err := <-done:
				if err != nil {
					componentLog := log.WithComponent("readiness")
					componentLog.Error().Err(err).
						Str("task_id", key.TaskID).
						Str("check", key.CheckName).
						Msg("readiness stream failed")
				}
				r.forget(key)
				onStreamDone(key, err)
				return
			}
		}
	}()
}

// Unsubscribe cancels the stream for key, if any, and forgets it.
// Idempotent: unsubscribing an unknown key is a no-op.
func (r *Registry) Unsubscribe(key Key) {
	r.mu.Lock()
	cancel, ok := r.cancel[key]
	if ok {
		delete(r.cancel, key)
	}
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// UnsubscribeAll cancels every active subscription; called on controller
// stop so no readiness probe outlives its owner.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancel))
	for k, c := range r.cancel {
		cancels = append(cancels, c)
		delete(r.cancel, k)
	}
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

func (r *Registry) forget(key Key) {
	r.mu.Lock()
	delete(r.cancel, key)
	r.mu.Unlock()
}

// Len reports the number of active subscriptions, used by pkg/metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancel)
}
