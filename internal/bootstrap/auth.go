package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/quill/config"
	"github.com/target/quill/internal/adapters/authroles"
	"github.com/target/quill/internal/adapters/devauth"
	"github.com/target/quill/internal/adapters/localauth"
	"github.com/target/quill/internal/adapters/oidc"
	redisadapter "github.com/target/quill/internal/adapters/redis"
	"github.com/target/quill/internal/data"
	"github.com/target/quill/internal/ports"
	"github.com/target/quill/internal/service"
)

// AuthConfig contains configuration for the identity provider and session service.
type AuthConfig struct {
	Auth        config.AuthConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildIdentityProvider creates the provider selected by the configured auth mode.
//
//nolint:ireturn // the concrete provider depends on AUTH_MODE.
func BuildIdentityProvider(ctx context.Context, cfg AuthConfig) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeDev:
		dev := cfg.Auth.DevAuth
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:   dev.UserID,
			Email:    dev.Email,
			Name:     dev.Name,
			Password: dev.Password,
			Groups:   dev.Groups,
		})
		if err != nil {
			return nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "dev auth enabled; sign-in accepts a fixed identity", "email", dev.Email)
		}
		return prov, nil

	case config.AuthModeOIDC:
		o := cfg.Auth.OIDC
		prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			Scope:        o.Scope,
			DiscoveryURL: o.DiscoveryURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		return prov, nil

	case config.AuthModeLocal, "":
		if cfg.DB == nil {
			return nil, errors.New("local auth requires a database connection")
		}
		prov, err := localauth.NewProvider(data.NewAccountRepo(cfg.DB), localauth.Config{Cost: cfg.Auth.BcryptCost})
		if err != nil {
			return nil, fmt.Errorf("create local auth provider: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// BuildSessionService wires the session service to Redis session storage,
// the profile table and the identity provider.
func BuildSessionService(identity ports.IdentityProvider, cfg AuthConfig) (*service.SessionService, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("session storage requires a redis client")
	}

	storage := redisadapter.NewSessionStorage(cfg.RedisClient, redisadapter.SessionStorageOptions{
		TTL:     cfg.Auth.Session.MaxAge,
		Channel: cfg.Auth.Session.RemovalChannel,
		Logger:  cfg.Logger,
	})

	backends := service.SessionBackends{
		Identity: identity,
		Storage:  storage,
	}
	if cfg.DB != nil {
		backends.Profiles = data.NewProfileRepo(cfg.DB)
	}
	if cfg.Auth.HasRoleGroups() {
		backends.Roles = authroles.StaticRoleMapper{
			AdminGroup:  cfg.Auth.AdminGroup,
			EditorGroup: cfg.Auth.EditorGroup,
		}
	}

	return service.NewSessionService(service.SessionServiceOptions{
		Backends: backends,
		Config: service.SessionConfig{
			Key:    cfg.Auth.Session.Key,
			MaxAge: cfg.Auth.Session.MaxAge,
		},
		Logger: cfg.Logger,
	}), nil
}
