package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

func TestStaticIdentityProvider_SignUpThenSignIn(t *testing.T) {
	p := NewStaticIdentityProvider()
	ctx := context.Background()

	id, err := p.SignUp(ctx, ports.Credentials{Email: "Ann@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)

	_, err = p.SignUp(ctx, ports.Credentials{Email: "ann@example.com", Password: "other"})
	require.ErrorIs(t, err, domainauth.ErrAlreadyRegistered)

	got, err := p.SignIn(ctx, ports.Credentials{Email: "ann@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = p.SignIn(ctx, ports.Credentials{Email: "ann@example.com", Password: "wrong"})
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)

	require.NoError(t, p.SignOut(ctx, id.UserID))
	assert.Equal(t, []string{"user-1"}, p.SignOuts)
}

func TestMemoryProfileStore(t *testing.T) {
	s := NewMemoryProfileStore()
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "u1")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, s.CreateProfile(ctx, domainauth.Profile{UserID: "u1", Name: "Ann", Role: domainauth.RoleAdmin}))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)

	err = s.CreateProfile(ctx, domainauth.Profile{UserID: "u1"})
	assert.True(t, apperrors.IsConflict(err))
}

func TestMemorySessionStorage_RemoveNotifiesWatchers(t *testing.T) {
	s := NewMemorySessionStorage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"uid":"u1"}`)))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":"u1"}`, string(got))

	removals, err := s.WatchRemovals(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, s.Watchers("k"))

	require.NoError(t, s.Remove(ctx, "k"))
	select {
	case <-removals:
	case <-time.After(time.Second):
		t.Fatal("expected removal notification")
	}

	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	cancel()
	_, ok := <-removals
	assert.False(t, ok, "watch channel closes when ctx ends")
	assert.Eventually(t, func() bool { return s.Watchers("k") == 0 }, time.Second, 10*time.Millisecond)
}

func TestStaticRoleMapper(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "admins", EditorGroup: "writers"}
	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{"writers", "admins"}))
	assert.Equal(t, domainauth.RoleEditor, m.Map([]string{"writers"}))
	assert.Equal(t, domainauth.RoleVisitor, m.Map([]string{"other"}))
	assert.Equal(t, domainauth.RoleVisitor, m.Map(nil))
}
