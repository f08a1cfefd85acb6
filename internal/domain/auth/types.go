package auth

// Package auth contains domain-level types for authentication, sessions and permissions.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence in the session blob.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleEditor  Role = "editor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleVisitor, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a raw role string. Unknown roles fall back to visitor.
func ParseRole(raw string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if r.Valid() {
		return r
	}
	return RoleVisitor
}

// Capability is a named permission granted by a role.
type Capability string

const (
	CapView  Capability = "view"
	CapEdit  Capability = "edit"
	CapAdmin Capability = "admin"
)

// DefaultMaxAge is how long a session stays valid after sign-in,
// independent of the identity provider's own token lifetime.
const DefaultMaxAge = 24 * time.Hour

// Identity represents the authenticated principal returned by an identity provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID string
	Email  string
	Name   string   // optional display name hint from the provider
	Groups []string // optional provider groups, mapped to a role by a RoleMapper
}

// Profile is the application-side record for an identity: display name and role.
type Profile struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Session is the locally persisted record of an authenticated user.
// LoginTime is stored as epoch milliseconds to stay compatible with existing blobs.
type Session struct {
	UserID      string       `json:"uid"`
	Email       string       `json:"email"`
	Name        string       `json:"name"`
	Role        Role         `json:"role"`
	Permissions []Capability `json:"permissions"`
	LoginTime   int64        `json:"loginTime"`
}

// NewSession builds a session for identity/profile started at now.
// Permissions are always derived from the role.
func NewSession(id Identity, p Profile, now time.Time) Session {
	role := ParseRole(string(p.Role))
	return Session{
		UserID:      id.UserID,
		Email:       id.Email,
		Name:        p.Name,
		Role:        role,
		Permissions: PermissionsForRole(role),
		LoginTime:   now.UnixMilli(),
	}
}

// StartedAt returns the login time as a time.Time.
func (s Session) StartedAt() time.Time { return time.UnixMilli(s.LoginTime) }

// ClockSkew is how far in the future a login time may lie before the session
// is treated as expired.
const ClockSkew = 5 * time.Minute

// Expired reports whether more than maxAge has elapsed since sign-in, or the
// sign-in lies further than ClockSkew in the future.
func (s Session) Expired(now time.Time, maxAge time.Duration) bool {
	elapsed := now.Sub(s.StartedAt())
	return elapsed > maxAge || elapsed < -ClockSkew
}

var (
	errMissingUserID    = errors.New("session: missing uid")
	errMissingEmail     = errors.New("session: missing email")
	errMissingName      = errors.New("session: missing name")
	errMissingRole      = errors.New("session: missing role")
	errMissingLoginTime = errors.New("session: missing loginTime")
)

// Validate checks that every required field is present.
func (s Session) Validate() error {
	switch {
	case s.UserID == "":
		return errMissingUserID
	case s.Email == "":
		return errMissingEmail
	case s.Name == "":
		return errMissingName
	case s.Role == "":
		return errMissingRole
	case s.LoginTime <= 0:
		return errMissingLoginTime
	}
	return nil
}

// Can reports whether the session grants capability c.
// Permissions are recomputed from the role so a tampered permission list has no effect.
func (s *Session) Can(c Capability) bool {
	if s == nil {
		return false
	}
	return slices.Contains(PermissionsForRole(s.Role), c)
}

// Owns reports whether the session identity authored a record with authorID.
func (s *Session) Owns(authorID string) bool {
	return s != nil && authorID != "" && s.UserID == authorID
}

// AuthEventKind identifies an authentication state change.
type AuthEventKind string

const (
	SignedIn  AuthEventKind = "signed_in"
	SignedOut AuthEventKind = "signed_out"
)

// AuthEvent is broadcast whenever the session is established or invalidated.
type AuthEvent struct {
	Event    AuthEventKind
	Identity Identity
}

// Provider failures that adapters report by wrapping these sentinels.
var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrAlreadyRegistered  = errors.New("user already registered")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrSignUpDisabled     = errors.New("signup disabled")
	ErrRateLimited        = errors.New("too many requests")
)
