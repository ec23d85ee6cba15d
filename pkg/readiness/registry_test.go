package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/glide/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DeliversResultsAndCompletion(t *testing.T) {
	fake := NewFake()
	registry := NewRegistry()

	key := Key{TaskID: "task-1", CheckName: "http"}
	spec := types.ReadinessCheckSpec{Name: "http"}

	var gotResults []Result
	doneCh := make(chan error, 1)

	registry.Subscribe(context.Background(), fake, key, spec,
		func(_ Key, r Result) { gotResults = append(gotResults, r) },
		func(_ Key, err error) { doneCh <- err },
	)

	fake.Send("http", Result{Ready: false})
	fake.Send("http", Result{Ready: true})

	require.Eventually(t, func() bool { return len(gotResults) == 2 }, time.Second, time.Millisecond)
	assert.False(t, gotResults[0].Ready)
	assert.True(t, gotResults[1].Ready)

	fake.Finish("http", nil)

	select {
	case err := <-doneCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("onStreamDone never fired")
	}

	assert.Equal(t, 0, registry.Len(), "registry forgets the key once the stream ends")
}

func TestRegistry_UnexpectedErrorIsNotFatal(t *testing.T) {
	fake := NewFake()
	registry := NewRegistry()

	key := Key{TaskID: "task-2", CheckName: "http"}
	spec := types.ReadinessCheckSpec{Name: "http"}

	doneCh := make(chan error, 1)
	registry.Subscribe(context.Background(), fake, key, spec,
		func(Key, Result) {},
		func(_ Key, err error) { doneCh <- err },
	)

	fake.Finish("http", errors.New("boom"))

	select {
	case err := <-doneCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("onStreamDone never fired")
	}
}

func TestRegistry_UnsubscribeCancelsStream(t *testing.T) {
	fake := NewFake()
	registry := NewRegistry()

	key := Key{TaskID: "task-3", CheckName: "http"}
	spec := types.ReadinessCheckSpec{Name: "http"}

	registry.Subscribe(context.Background(), fake, key, spec, func(Key, Result) {}, func(Key, error) {})
	assert.Equal(t, 1, registry.Len())

	registry.Unsubscribe(key)
	assert.Equal(t, 0, registry.Len())

	// Unsubscribing twice, or an unknown key, must not panic.
	registry.Unsubscribe(key)
	registry.Unsubscribe(Key{TaskID: "missing"})
}
