package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/quill/config"
	"github.com/target/quill/internal/adapters/devauth"
	domainauth "github.com/target/quill/internal/domain/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devAuthConfig() config.AuthConfig {
	cfg := config.AuthConfig{
		Mode: config.AuthModeDev,
		DevAuth: config.DevAuthConfig{
			UserID: "dev",
			Email:  "dev@example.com",
			Name:   "Dev",
			Groups: []string{"admins"},
		},
		AdminGroup: "admins",
	}
	cfg.Sanitize()
	return cfg
}

func TestBuildIdentityProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("dev", func(t *testing.T) {
		prov, err := BuildIdentityProvider(ctx, AuthConfig{Auth: devAuthConfig(), Logger: discardLogger()})
		require.NoError(t, err)
		assert.IsType(t, &devauth.Provider{}, prov)
	})

	t.Run("local requires a database", func(t *testing.T) {
		_, err := BuildIdentityProvider(ctx, AuthConfig{Auth: config.AuthConfig{Mode: config.AuthModeLocal}})
		require.Error(t, err)
	})

	t.Run("oidc discovery failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := BuildIdentityProvider(ctx, AuthConfig{Auth: config.AuthConfig{
			Mode: config.AuthModeOIDC,
			OIDC: config.OIDCConfig{ClientID: "quill", DiscoveryURL: srv.URL},
		}})
		require.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := BuildIdentityProvider(ctx, AuthConfig{Auth: config.AuthConfig{Mode: "saml"}})
		require.Error(t, err)
	})
}

func TestBuildSessionServiceRequiresRedis(t *testing.T) {
	_, err := BuildSessionService(nil, AuthConfig{Auth: devAuthConfig()})
	require.Error(t, err)
}

func TestBuildSessionService_DevSignIn(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := AuthConfig{Auth: devAuthConfig(), RedisClient: client, Logger: discardLogger()}
	ctx := context.Background()

	prov, err := BuildIdentityProvider(ctx, cfg)
	require.NoError(t, err)
	sessions, err := BuildSessionService(prov, cfg)
	require.NoError(t, err)
	defer sessions.Close()

	sess, err := sessions.SignIn(ctx, "dev@example.com", "whatever")
	require.NoError(t, err)
	// no profile store: the admin group decides the role
	assert.Equal(t, domainauth.RoleAdmin, sess.Role)
	assert.True(t, mr.Exists("quill:userAuth"))

	ttl := mr.TTL("quill:userAuth")
	assert.Equal(t, cfg.Auth.Session.MaxAge, ttl)
}
