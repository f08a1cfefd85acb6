package devauth

// Package devauth provides a simple, config-driven IdentityProvider for local development.

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/ports"
)

// Config controls the dev auth provider behavior.
// UserID and Email are required; Password may be empty to accept any password.
type Config struct {
	UserID   string
	Email    string
	Name     string
	Password string
	Groups   []string
}

// Provider implements ports.IdentityProvider for local development.
// SignIn accepts the configured email and returns the configured identity.
type Provider struct {
	identity domainauth.Identity
	password string
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID: cfg.UserID,
			Email:  strings.ToLower(strings.TrimSpace(cfg.Email)),
			Name:   cfg.Name,
			Groups: append([]string(nil), cfg.Groups...),
		},
		password: cfg.Password,
	}, nil
}

// SignIn returns the dev identity when the email matches and, if configured, the password.
func (p *Provider) SignIn(_ context.Context, in ports.Credentials) (domainauth.Identity, error) {
	if !strings.EqualFold(strings.TrimSpace(in.Email), p.identity.Email) {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	if p.password != "" && subtle.ConstantTimeCompare([]byte(in.Password), []byte(p.password)) != 1 {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	return id, nil
}

// SignUp is not available in dev mode.
func (p *Provider) SignUp(context.Context, ports.Credentials) (domainauth.Identity, error) {
	return domainauth.Identity{}, domainauth.ErrSignUpDisabled
}

// SignOut is a no-op.
func (p *Provider) SignOut(context.Context, string) error { return nil }
