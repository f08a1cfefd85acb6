package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the identity provider.
type AuthMode string

const (
	// AuthModeLocal authenticates against the local accounts table.
	AuthModeLocal AuthMode = "local"
	// AuthModeOIDC uses an OpenID Connect provider's password grant.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev signs in a fixed identity (for development only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oidc", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, oidc, dev)", v)
	}
}

// OIDCConfig contains OpenID Connect configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"quill"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the dev identity.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	UserID   string   `env:"USER_ID"  envDefault:"dev-user"`
	Email    string   `env:"EMAIL"    envDefault:"dev@example.com"`
	Name     string   `env:"NAME"     envDefault:"Dev User"`
	Password string   `env:"PASSWORD"`
	Groups   []string `env:"GROUPS"   envDefault:"editors"         envSeparator:";"`
}

// SessionConfig controls the persisted session blob.
type SessionConfig struct {
	// Key is the storage key of the session blob.
	Key string `env:"KEY" envDefault:"quill:userAuth"`
	// MaxAge bounds how long a stored session stays valid after sign-in.
	MaxAge time.Duration `env:"MAX_AGE" envDefault:"24h"`
	// RemovalChannel is the pub/sub channel announcing session removal.
	RemovalChannel string `env:"REMOVAL_CHANNEL" envDefault:"quill:session:removed"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// DevAuth configuration (used when Mode=dev).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// BcryptCost is the password hashing cost for Mode=local.
	BcryptCost int `env:"AUTH_BCRYPT_COST" envDefault:"10"`

	Session SessionConfig `envPrefix:"SESSION_"`

	// AdminGroup and EditorGroup map provider groups to roles for
	// identities that have no profile yet.
	AdminGroup  string `env:"ADMIN_GROUP"`
	EditorGroup string `env:"EDITOR_GROUP"`
}

// Sanitize trims values and restores defaults for out-of-range settings.
func (c *AuthConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = AuthModeLocal
	}
	c.OIDC.DiscoveryURL = strings.TrimSpace(c.OIDC.DiscoveryURL)
	c.OIDC.ClientID = strings.TrimSpace(c.OIDC.ClientID)
	c.AdminGroup = strings.TrimSpace(c.AdminGroup)
	c.EditorGroup = strings.TrimSpace(c.EditorGroup)

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		c.BcryptCost = 10
	}
	if c.Session.Key = strings.TrimSpace(c.Session.Key); c.Session.Key == "" {
		c.Session.Key = "quill:userAuth"
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 24 * time.Hour
	}
	if c.Session.RemovalChannel = strings.TrimSpace(c.Session.RemovalChannel); c.Session.RemovalChannel == "" {
		c.Session.RemovalChannel = "quill:session:removed"
	}
}

// Validate reports missing settings for the selected mode.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeOIDC:
		if c.OIDC.DiscoveryURL == "" {
			return errors.New("OIDC_DISCOVERY_URL is required when AUTH_MODE=oidc")
		}
		if c.OIDC.ClientID == "" {
			return errors.New("OIDC_CLIENT_ID is required when AUTH_MODE=oidc")
		}
	case AuthModeDev:
		if c.DevAuth.UserID == "" || c.DevAuth.Email == "" {
			return errors.New("DEV_AUTH_USER_ID and DEV_AUTH_EMAIL are required when AUTH_MODE=dev")
		}
	}
	return nil
}

// HasRoleGroups reports whether any group-to-role mapping is configured.
func (c *AuthConfig) HasRoleGroups() bool {
	return c.AdminGroup != "" || c.EditorGroup != ""
}
