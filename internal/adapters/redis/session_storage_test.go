package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, opts SessionStorageOptions) (*SessionStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStorage(client, opts), mr
}

func TestSessionStorage_SetGetRemove(t *testing.T) {
	s, mr := newTestStorage(t, SessionStorageOptions{})
	ctx := context.Background()

	got, err := s.Get(ctx, "quill:userAuth")
	require.NoError(t, err)
	assert.Nil(t, got)

	blob := []byte(`{"uid":"u1","loginTime":1700000000000}`)
	require.NoError(t, s.Set(ctx, "quill:userAuth", blob))
	assert.True(t, mr.Exists("quill:userAuth"))

	got, err = s.Get(ctx, "quill:userAuth")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, s.Remove(ctx, "quill:userAuth"))
	assert.False(t, mr.Exists("quill:userAuth"))

	// Removing an absent key is fine.
	require.NoError(t, s.Remove(ctx, "quill:userAuth"))
}

func TestSessionStorage_TTL(t *testing.T) {
	s, mr := newTestStorage(t, SessionStorageOptions{TTL: 24 * time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, 24*time.Hour, mr.TTL("k"))

	mr.FastForward(25 * time.Hour)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStorage_EmptyKey(t *testing.T) {
	s, _ := newTestStorage(t, SessionStorageOptions{})
	ctx := context.Background()

	_, err := s.Get(ctx, "")
	require.Error(t, err)
	require.Error(t, s.Set(ctx, "", []byte("v")))
	require.NoError(t, s.Remove(ctx, ""))
}

func TestSessionStorage_WatchRemovals(t *testing.T) {
	s, _ := newTestStorage(t, SessionStorageOptions{Channel: "test:removed"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removals, err := s.WatchRemovals(ctx, "mine")
	require.NoError(t, err)

	// Removal of another key is ignored.
	require.NoError(t, s.Remove(ctx, "theirs"))
	select {
	case <-removals:
		t.Fatal("unexpected notification for another key")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, s.Set(ctx, "mine", []byte("v")))
	require.NoError(t, s.Remove(ctx, "mine"))
	select {
	case _, ok := <-removals:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected removal notification")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-removals:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
