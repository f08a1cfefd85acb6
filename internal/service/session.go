package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/domain/notify"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

// DefaultSessionKey is the storage key of the persisted session blob.
const DefaultSessionKey = "quill:userAuth"

// SessionConfig tunes session persistence.
type SessionConfig struct {
	Key    string
	MaxAge time.Duration
	Now    func() time.Time
}

// SessionBackends groups the external collaborators of SessionService.
type SessionBackends struct {
	Identity ports.IdentityProvider
	Profiles ports.ProfileStore
	Storage  ports.SessionStorage
	// Roles, when set, maps provider groups to a role for identities without a profile.
	Roles ports.RoleMapper
}

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Backends SessionBackends
	Config   SessionConfig
	Logger   *slog.Logger
}

// SessionService holds the authenticated identity and its role-derived capabilities.
// It is the only writer of the persisted session blob.
type SessionService struct {
	identity ports.IdentityProvider
	profiles ports.ProfileStore
	storage  ports.SessionStorage
	roles    ports.RoleMapper
	key      string
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.RWMutex
	current *domainauth.Session

	events *notify.Broadcaster[domainauth.AuthEvent]
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) *SessionService {
	if opts.Backends.Storage == nil {
		panic("SessionStorage is required")
	}
	cfg := opts.Config
	if cfg.Key == "" {
		cfg.Key = DefaultSessionKey
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = domainauth.DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		identity: opts.Backends.Identity,
		profiles: opts.Backends.Profiles,
		storage:  opts.Backends.Storage,
		roles:    opts.Backends.Roles,
		key:      cfg.Key,
		maxAge:   cfg.MaxAge,
		now:      cfg.Now,
		logger:   logger.With("component", "session"),
		events:   notify.NewBroadcaster[domainauth.AuthEvent](),
	}
}

// LoadSession reads the persisted session. Missing, malformed, invalid or expired
// blobs yield nil and are cleared; failures are logged, never returned.
func (s *SessionService) LoadSession(ctx context.Context) *domainauth.Session {
	raw, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.logger.WarnContext(ctx, "read persisted session failed", "error", err)
		s.setCurrent(nil)
		return nil
	}
	if raw == nil {
		s.setCurrent(nil)
		return nil
	}

	var sess domainauth.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.discard(ctx, "malformed", err)
		return nil
	}
	if err := sess.Validate(); err != nil {
		s.discard(ctx, "invalid", err)
		return nil
	}
	if sess.Expired(s.now(), s.maxAge) {
		s.discard(ctx, "expired", nil)
		return nil
	}

	sess.Role = domainauth.ParseRole(string(sess.Role))
	sess.Permissions = domainauth.PermissionsForRole(sess.Role)
	s.setCurrent(&sess)
	return s.Current()
}

// Current returns a copy of the in-memory session, or nil. An expired session is
// reported as nil even before the next LoadSession.
func (s *SessionService) Current() *domainauth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Expired(s.now(), s.maxAge) {
		return nil
	}
	cp := *s.current
	return &cp
}

// HasPermission reports whether the current session grants c.
func (s *SessionService) HasPermission(c domainauth.Capability) bool {
	return domainauth.HasPermission(s.Current(), c)
}

// AuthEvents subscribes to sign-in and sign-out notifications.
func (s *SessionService) AuthEvents() (func(), <-chan domainauth.AuthEvent) {
	return s.events.Subscribe()
}

// Watch invalidates the in-memory session as soon as another client removes the
// persisted blob. It blocks until ctx is done or the storage watch ends.
func (s *SessionService) Watch(ctx context.Context) error {
	removals, err := s.storage.WatchRemovals(ctx, s.key)
	if err != nil {
		return fmt.Errorf("watch session removals: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-removals:
			if !ok {
				return nil
			}
			s.invalidate(ctx, "removed elsewhere")
		}
	}
}

// SignIn authenticates with the identity provider and persists a fresh session.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (*domainauth.Session, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperrors.ValidationField("password", errors.New("password is required"))
	}
	if s.identity == nil {
		return nil, errors.New("identity provider not configured")
	}

	id, err := s.identity.SignIn(ctx, ports.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return s.establish(ctx, id)
}

// SignUpInput carries registration details.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Role     domainauth.Role
}

// Validate applies the registration form rules.
func (in SignUpInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 20 {
		return apperrors.ValidationField("name", errors.New("name must be between 2 and 20 characters"))
	}
	if err := validateEmail(strings.TrimSpace(in.Email)); err != nil {
		return err
	}
	if len(in.Password) < 6 {
		return apperrors.ValidationField("password", errors.New("password must be at least 6 characters"))
	}
	if in.Role != "" && !in.Role.Valid() {
		return apperrors.ValidationField("role", fmt.Errorf("unknown role %q", in.Role))
	}
	return nil
}

// SignUp creates an account and its profile, then signs in. A failure to create the
// profile is logged and does not fail registration.
func (s *SessionService) SignUp(ctx context.Context, in SignUpInput) (*domainauth.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if s.identity == nil {
		return nil, errors.New("identity provider not configured")
	}
	email := strings.TrimSpace(in.Email)
	id, err := s.identity.SignUp(ctx, ports.Credentials{Email: email, Password: in.Password})
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	role := in.Role
	if role == "" {
		role = domainauth.RoleEditor
	}
	if s.profiles != nil {
		profile := domainauth.Profile{UserID: id.UserID, Name: strings.TrimSpace(in.Name), Role: role}
		if perr := s.profiles.CreateProfile(ctx, profile); perr != nil {
			s.logger.WarnContext(ctx, "create profile failed", "user_id", id.UserID, "error", perr)
		}
	}
	return s.establish(ctx, id)
}

// SignOut ends the session locally and at the provider and notifies other clients.
func (s *SessionService) SignOut(ctx context.Context) error {
	cur := s.Current()
	if cur != nil && s.identity != nil {
		if err := s.identity.SignOut(ctx, cur.UserID); err != nil {
			return fmt.Errorf("sign out: %w", err)
		}
	}
	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.invalidate(ctx, "signed out")
	return nil
}

// Close stops auth event subscriptions.
func (s *SessionService) Close() {
	s.events.StopAll()
}

func (s *SessionService) establish(ctx context.Context, id domainauth.Identity) (*domainauth.Session, error) {
	profile := s.lookupProfile(ctx, id)
	sess := domainauth.NewSession(id, profile, s.now())

	blob, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, blob); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.setCurrent(&sess)
	s.logger.InfoContext(ctx, "signed in", "user_id", sess.UserID, "role", sess.Role)
	s.events.Publish(domainauth.AuthEvent{Event: domainauth.SignedIn, Identity: id})
	return s.Current(), nil
}

// lookupProfile falls back to {name: local part of the email, role: editor}
// when no profile exists or the store is unavailable. Provider groups, when
// present and a RoleMapper is configured, decide the fallback role instead.
func (s *SessionService) lookupProfile(ctx context.Context, id domainauth.Identity) domainauth.Profile {
	fallback := domainauth.Profile{UserID: id.UserID, Name: defaultName(id), Role: domainauth.RoleEditor}
	if s.roles != nil && len(id.Groups) > 0 {
		fallback.Role = s.roles.Map(id.Groups)
	}
	if s.profiles == nil {
		return fallback
	}
	p, err := s.profiles.GetProfile(ctx, id.UserID)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.logger.WarnContext(ctx, "load profile failed, using defaults", "user_id", id.UserID, "error", err)
		}
		return fallback
	}
	if p.Name == "" {
		p.Name = fallback.Name
	}
	return p
}

func (s *SessionService) discard(ctx context.Context, reason string, cause error) {
	attrs := []any{"reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	s.logger.WarnContext(ctx, "discarding persisted session", attrs...)
	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.logger.WarnContext(ctx, "clear persisted session failed", "error", err)
	}
	s.setCurrent(nil)
}

func (s *SessionService) invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev == nil {
		return
	}
	s.logger.InfoContext(ctx, "session invalidated", "user_id", prev.UserID, "reason", reason)
	s.events.Publish(domainauth.AuthEvent{
		Event:    domainauth.SignedOut,
		Identity: domainauth.Identity{UserID: prev.UserID, Email: prev.Email, Name: prev.Name},
	})
}

func (s *SessionService) setCurrent(sess *domainauth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

func validateEmail(email string) error {
	if email == "" {
		return apperrors.ValidationField("email", errors.New("email is required"))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return apperrors.ValidationField("email", errors.New("email format is invalid"))
	}
	return nil
}

func defaultName(id domainauth.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	if at := strings.Index(id.Email, "@"); at > 0 {
		return id.Email[:at]
	}
	return id.Email
}
