package ports

// Package ports defines interfaces (hexagonal ports) for the external collaborators.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/quill/internal/domain/auth"
)

// Credentials carries an email/password pair for the identity provider.
type Credentials struct {
	Email    string
	Password string
}

// IdentityProvider authenticates users against an external identity service.
type IdentityProvider interface {
	// SignIn verifies the credentials and returns the authenticated identity.
	SignIn(ctx context.Context, in Credentials) (domainauth.Identity, error)
	// SignUp creates a new account and returns its identity.
	SignUp(ctx context.Context, in Credentials) (domainauth.Identity, error)
	// SignOut ends the provider-side session for userID, if the provider keeps one.
	SignOut(ctx context.Context, userID string) error
}

// ProfileStore persists the display name and role for identities.
type ProfileStore interface {
	// GetProfile returns the profile for userID or an error matching errors.IsNotFound.
	GetProfile(ctx context.Context, userID string) (domainauth.Profile, error)
	CreateProfile(ctx context.Context, p domainauth.Profile) error
}

// SessionStorage keeps a single serialized session blob per key and reports
// when another client removes it.
type SessionStorage interface {
	// Get returns the stored blob, or nil with no error when nothing is stored.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the blob and notifies watchers.
	Remove(ctx context.Context, key string) error
	// WatchRemovals streams removal notifications for key until ctx is done.
	// The returned channel is closed when the watch ends.
	WatchRemovals(ctx context.Context, key string) (<-chan struct{}, error)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// Account is a locally stored credential record.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
}

// AccountStore persists credential records for the local identity provider.
type AccountStore interface {
	// CreateAccount stores a new account; a duplicate email is a conflict error.
	CreateAccount(ctx context.Context, a Account) error
	// GetAccountByEmail matches email case-insensitively; a miss is a not-found error.
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
}
