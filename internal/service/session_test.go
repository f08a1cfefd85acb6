package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/mocks"
	authmocks "github.com/target/quill/internal/mocks/auth"
	"github.com/target/quill/internal/ports"
	"go.uber.org/mock/gomock"
)

type sessionFixture struct {
	svc      *SessionService
	provider *authmocks.StaticIdentityProvider
	profiles *authmocks.MemoryProfileStore
	storage  *authmocks.MemorySessionStorage
	now      *time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &sessionFixture{
		provider: authmocks.NewStaticIdentityProvider(),
		profiles: authmocks.NewMemoryProfileStore(),
		storage:  authmocks.NewMemorySessionStorage(),
		now:      &now,
	}
	f.svc = NewSessionService(SessionServiceOptions{
		Backends: SessionBackends{Identity: f.provider, Profiles: f.profiles, Storage: f.storage},
		Config:   SessionConfig{Now: func() time.Time { return *f.now }},
	})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *sessionFixture) storeBlob(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, f.storage.Set(context.Background(), DefaultSessionKey, raw))
}

func TestSessionService_LoadSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.svc.LoadSession(ctx), "nothing stored")

	loginTime := f.now.Add(-23 * time.Hour).UnixMilli()
	f.storeBlob(t, map[string]any{
		"uid": "u1", "email": "ann@example.com", "name": "Ann", "role": "admin",
		"permissions": []string{"view"}, "loginTime": loginTime,
	})

	sess := f.svc.LoadSession(ctx)
	require.NotNil(t, sess)
	assert.Equal(t, domainauth.RoleAdmin, sess.Role)
	// Permissions are rebuilt from the role.
	assert.ElementsMatch(t, []domainauth.Capability{domainauth.CapView, domainauth.CapEdit, domainauth.CapAdmin}, sess.Permissions)
	assert.True(t, f.svc.HasPermission(domainauth.CapAdmin))

	// Two hours later the session is past 24h and disappears.
	*f.now = f.now.Add(2 * time.Hour)
	assert.Nil(t, f.svc.Current())
	assert.False(t, f.svc.HasPermission(domainauth.CapView))
	assert.Nil(t, f.svc.LoadSession(ctx))

	raw, err := f.storage.Get(ctx, DefaultSessionKey)
	require.NoError(t, err)
	assert.Nil(t, raw, "expired blob is cleared")
}

func TestSessionService_LoadSessionDiscardsBadBlobs(t *testing.T) {
	nextYear := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	tests := map[string]any{
		"malformed":     "not json at all",
		"missing email": map[string]any{"uid": "u1", "name": "Ann", "role": "editor", "loginTime": 1},
		"missing time":  map[string]any{"uid": "u1", "email": "a@b.co", "name": "Ann", "role": "editor"},
		"future time":   map[string]any{"uid": "u1", "email": "a@b.co", "name": "Ann", "role": "editor", "loginTime": nextYear},
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			f := newSessionFixture(t)
			ctx := context.Background()
			if s, ok := blob.(string); ok {
				require.NoError(t, f.storage.Set(ctx, DefaultSessionKey, []byte(s)))
			} else {
				f.storeBlob(t, blob)
			}

			assert.Nil(t, f.svc.LoadSession(ctx))
			raw, err := f.storage.Get(ctx, DefaultSessionKey)
			require.NoError(t, err)
			assert.Nil(t, raw)
		})
	}
}

func TestSessionService_UnknownRoleFallsBackToVisitor(t *testing.T) {
	f := newSessionFixture(t)
	f.storeBlob(t, map[string]any{
		"uid": "u1", "email": "ann@example.com", "name": "Ann", "role": "superuser",
		"loginTime": f.now.UnixMilli(),
	})

	sess := f.svc.LoadSession(context.Background())
	require.NotNil(t, sess)
	assert.Equal(t, domainauth.RoleVisitor, sess.Role)
	assert.True(t, f.svc.HasPermission(domainauth.CapView))
	assert.False(t, f.svc.HasPermission(domainauth.CapEdit))
}

func TestSessionService_SignInUsesProfile(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	id := f.provider.Add("ann@example.com", "secret1")
	require.NoError(t, f.profiles.CreateProfile(ctx, domainauth.Profile{UserID: id.UserID, Name: "Ann", Role: domainauth.RoleAdmin}))

	unsub, events := f.svc.AuthEvents()
	defer unsub()

	sess, err := f.svc.SignIn(ctx, " ann@example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", sess.Name)
	assert.Equal(t, domainauth.RoleAdmin, sess.Role)
	assert.Equal(t, f.now.UnixMilli(), sess.LoginTime)

	ev := <-events
	assert.Equal(t, domainauth.SignedIn, ev.Event)
	assert.Equal(t, id.UserID, ev.Identity.UserID)

	raw, err := f.storage.Get(ctx, DefaultSessionKey)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, id.UserID, stored["uid"])
	assert.Equal(t, "admin", stored["role"])
	assert.EqualValues(t, f.now.UnixMilli(), stored["loginTime"])
}

func TestSessionService_SignInWithoutProfileDefaultsToEditor(t *testing.T) {
	f := newSessionFixture(t)
	f.provider.Add("bob@example.com", "secret1")

	sess, err := f.svc.SignIn(context.Background(), "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Name)
	assert.Equal(t, domainauth.RoleEditor, sess.Role)
}

func TestSessionService_SignInGroupsMapToRole(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockIdentityProvider(ctrl)
	profiles := mocks.NewMockProfileStore(ctrl)

	provider.EXPECT().SignIn(gomock.Any(), ports.Credentials{Email: "cy@example.com", Password: "pw"}).
		Return(domainauth.Identity{UserID: "u9", Email: "cy@example.com", Groups: []string{"readers"}}, nil)
	profiles.EXPECT().GetProfile(gomock.Any(), "u9").Return(domainauth.Profile{}, apperrors.NotFoundf("profile u9 not found"))

	svc := NewSessionService(SessionServiceOptions{
		Backends: SessionBackends{
			Identity: provider,
			Profiles: profiles,
			Storage:  authmocks.NewMemorySessionStorage(),
			Roles:    authmocks.StaticRoleMapper{AdminGroup: "admins", EditorGroup: "writers"},
		},
	})
	defer svc.Close()

	sess, err := svc.SignIn(context.Background(), "cy@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleVisitor, sess.Role)
}

func TestSessionService_SignInErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.provider.Add("ann@example.com", "secret1")

	_, err := f.svc.SignIn(ctx, "not-an-email", "secret1")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))

	_, err = f.svc.SignIn(ctx, "ann@example.com", "")
	assert.Equal(t, "password", apperrors.GetField(err))

	_, err = f.svc.SignIn(ctx, "ann@example.com", "wrong")
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	assert.Equal(t, "email or password is incorrect", FriendlyMessage(err))
	assert.Nil(t, f.svc.Current())
}

func TestSessionService_SignUp(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	sess, err := f.svc.SignUp(ctx, SignUpInput{Name: "Dee", Email: "dee@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Dee", sess.Name)
	assert.Equal(t, domainauth.RoleEditor, sess.Role)

	p, err := f.profiles.GetProfile(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Dee", p.Name)

	_, err = f.svc.SignUp(ctx, SignUpInput{Name: "Dee", Email: "dee@example.com", Password: "secret1"})
	require.ErrorIs(t, err, domainauth.ErrAlreadyRegistered)
}

func TestSessionService_SignUpProfileFailureIsNotFatal(t *testing.T) {
	f := newSessionFixture(t)
	f.profiles.CreateErr = errors.New("insert failed")

	sess, err := f.svc.SignUp(context.Background(), SignUpInput{Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: domainauth.RoleAdmin})
	require.NoError(t, err)
	// Without a stored profile the defaults apply.
	assert.Equal(t, "eve", sess.Name)
	assert.Equal(t, domainauth.RoleEditor, sess.Role)
}

func TestSignUpInput_Validate(t *testing.T) {
	valid := SignUpInput{Name: "Ann", Email: "ann@example.com", Password: "secret"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		mutate func(*SignUpInput)
		field  string
	}{
		{func(in *SignUpInput) { in.Name = "A" }, "name"},
		{func(in *SignUpInput) { in.Name = "ABCDEFGHIJKLMNOPQRSTU" }, "name"},
		{func(in *SignUpInput) { in.Email = "ann@localhost" }, "email"},
		{func(in *SignUpInput) { in.Email = "Ann <ann@example.com>" }, "email"},
		{func(in *SignUpInput) { in.Password = "12345" }, "password"},
		{func(in *SignUpInput) { in.Role = "root" }, "role"},
	}
	for _, tt := range tests {
		in := valid
		tt.mutate(&in)
		err := in.Validate()
		require.Error(t, err)
		assert.Equal(t, tt.field, apperrors.GetField(err))
	}
}

func TestSessionService_SignOut(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	id := f.provider.Add("ann@example.com", "secret1")
	_, err := f.svc.SignIn(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	unsub, events := f.svc.AuthEvents()
	defer unsub()

	require.NoError(t, f.svc.SignOut(ctx))
	assert.Nil(t, f.svc.Current())
	assert.Equal(t, []string{id.UserID}, f.provider.SignOuts)

	ev := <-events
	assert.Equal(t, domainauth.SignedOut, ev.Event)
	assert.Equal(t, id.UserID, ev.Identity.UserID)

	raw, err := f.storage.Get(ctx, DefaultSessionKey)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestSessionService_WatchInvalidatesOnRemoteRemoval(t *testing.T) {
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.provider.Add("ann@example.com", "secret1")
	_, err := f.svc.SignIn(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	unsub, events := f.svc.AuthEvents()
	defer unsub()

	watchDone := make(chan error, 1)
	go func() { watchDone <- f.svc.Watch(ctx) }()
	require.Eventually(t, func() bool { return f.storage.Watchers(DefaultSessionKey) == 1 }, time.Second, 5*time.Millisecond)

	// Another client signs out.
	require.NoError(t, f.storage.Remove(ctx, DefaultSessionKey))

	select {
	case ev := <-events:
		assert.Equal(t, domainauth.SignedOut, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("expected signed_out event")
	}
	assert.Nil(t, f.svc.Current())

	cancel()
	assert.NoError(t, <-watchDone)
}

func TestFriendlyMessage(t *testing.T) {
	assert.Equal(t, "", FriendlyMessage(nil))
	assert.Equal(t, "please sign in first", FriendlyMessage(apperrors.Unauthenticated("x")))
	assert.Equal(t, "you do not have permission to do that", FriendlyMessage(apperrors.Forbidden("x")))
	assert.Equal(t, "too many attempts, please try again later", FriendlyMessage(domainauth.ErrRateLimited))
	assert.Equal(t, "operation failed: boom", FriendlyMessage(errors.New("boom")))
}
