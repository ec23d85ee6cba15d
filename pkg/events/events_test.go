package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_DeliversInPublishOrder(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.PublishInstanceChanged(InstanceChanged{InstanceID: string(rune('a' + i))})
	}

	var got []string
	for i := 0; i < 5; i++ {
		select {
		case e := <-sub:
			require.NotNil(t, e.InstanceChanged)
			got = append(got, e.InstanceChanged.InstanceID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	b.PublishInstanceChanged(InstanceChanged{InstanceID: "x"})

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
