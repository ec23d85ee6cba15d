package readiness

import (
	"context"
	"sync"

	"github.com/cuemby/glide/pkg/types"
)

// Fake is a test-double Executor whose result stream is driven entirely
// by the test: Send publishes a Result on the named check's stream,
// Finish ends it. Streams are keyed by ReadinessCheckSpec.Name.
type Fake struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
}

type fakeStream struct {
	results chan Result
	done    chan error
}

// NewFake creates an empty fake executor.
func NewFake() *Fake {
	return &Fake{streams: make(map[string]*fakeStream)}
}

func (f *Fake) Execute(_ context.Context, spec types.ReadinessCheckSpec) (<-chan Result, <-chan error) {
	s := &fakeStream{
		results: make(chan Result, 8),
		done:    make(chan error, 1),
	}

	f.mu.Lock()
	f.streams[spec.Name] = s
	f.mu.Unlock()

	return s.results, s.done
}

// Send publishes a result on the named check's stream. It is a no-op if
// Execute has not been called for that name yet.
func (f *Fake) Send(name string, result Result) {
	f.mu.Lock()
	s := f.streams[name]
	f.mu.Unlock()
	if s != nil {
		s.results <- result
	}
}

// Finish ends the named check's stream, delivering err (nil for a clean
// end) and closing its result channel.
func (f *Fake) Finish(name string, err error) {
	f.mu.Lock()
	s := f.streams[name]
	delete(f.streams, name)
	f.mu.Unlock()
	if s != nil {
		s.done <- err
		close(s.results)
	}
}
