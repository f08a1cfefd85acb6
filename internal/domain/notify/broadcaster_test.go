package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return v
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected value to be delivered")
	}
	var zero T
	return zero
}

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()
	unsubA, a := b.Subscribe()
	defer unsubA()
	unsubB, c := b.Subscribe()
	defer unsubB()

	b.Publish(1)
	assert.Equal(t, 1, recv(t, a))
	assert.Equal(t, 1, recv(t, c))
}

func TestBroadcaster_SlowSubscriberSeesLatest(t *testing.T) {
	b := NewBroadcaster[int]()
	unsub, ch := b.Subscribe()
	defer unsub()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)

	assert.Equal(t, 3, recv(t, ch))
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[string]()
	unsub, ch := b.Subscribe()
	b.Publish("pending")

	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestBroadcaster_StopAll(t *testing.T) {
	b := NewBroadcaster[int]()
	_, ch := b.Subscribe()
	b.StopAll()

	_, ok := <-ch
	assert.False(t, ok)

	_, late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	b.Publish(1)
}
