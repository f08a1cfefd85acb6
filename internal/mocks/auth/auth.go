package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*StaticIdentityProvider)(nil)
	_ ports.ProfileStore     = (*MemoryProfileStore)(nil)
	_ ports.AccountStore     = (*MemoryAccountStore)(nil)
	_ ports.SessionStorage   = (*MemorySessionStorage)(nil)
	_ ports.RoleMapper       = StaticRoleMapper{}
)

// StaticIdentityProvider keeps accounts in memory keyed by lower-cased email.
type StaticIdentityProvider struct {
	SignInFunc func(ctx context.Context, in ports.Credentials) (domainauth.Identity, error)

	mu       sync.Mutex
	accounts map[string]account
	nextID   int
	// SignOuts records the user IDs passed to SignOut.
	SignOuts []string
}

type account struct {
	id       domainauth.Identity
	password string
}

// NewStaticIdentityProvider creates an empty provider.
func NewStaticIdentityProvider() *StaticIdentityProvider {
	return &StaticIdentityProvider{accounts: make(map[string]account)}
}

// Add registers an account directly and returns its identity.
func (p *StaticIdentityProvider) Add(email, password string) domainauth.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addLocked(email, password)
}

func (p *StaticIdentityProvider) addLocked(email, password string) domainauth.Identity {
	p.nextID++
	id := domainauth.Identity{UserID: fmt.Sprintf("user-%d", p.nextID), Email: email}
	p.accounts[strings.ToLower(email)] = account{id: id, password: password}
	return id
}

func (p *StaticIdentityProvider) SignIn(ctx context.Context, in ports.Credentials) (domainauth.Identity, error) {
	if p.SignInFunc != nil {
		return p.SignInFunc(ctx, in)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[strings.ToLower(in.Email)]
	if !ok || acc.password != in.Password {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	return acc.id, nil
}

func (p *StaticIdentityProvider) SignUp(_ context.Context, in ports.Credentials) (domainauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[strings.ToLower(in.Email)]; ok {
		return domainauth.Identity{}, domainauth.ErrAlreadyRegistered
	}
	return p.addLocked(in.Email, in.Password), nil
}

func (p *StaticIdentityProvider) SignOut(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SignOuts = append(p.SignOuts, userID)
	return nil
}

// MemoryProfileStore is an in-memory ProfileStore.
type MemoryProfileStore struct {
	// CreateErr, when set, is returned by CreateProfile.
	CreateErr error

	mu       sync.Mutex
	profiles map[string]domainauth.Profile
}

// NewMemoryProfileStore creates an empty profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domainauth.Profile)}
}

func (m *MemoryProfileStore) GetProfile(_ context.Context, userID string) (domainauth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domainauth.Profile{}, apperrors.NotFoundf("profile %s not found", userID)
	}
	return p, nil
}

func (m *MemoryProfileStore) CreateProfile(_ context.Context, p domainauth.Profile) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; ok {
		return &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "profile already exists"}
	}
	m.profiles[p.UserID] = p
	return nil
}

// MemorySessionStorage is an in-memory SessionStorage. Removals are fanned out
// to every active watcher of the key, like a shared store seen by several clients.
type MemorySessionStorage struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	watchers map[string][]chan struct{}
}

// NewMemorySessionStorage creates empty storage.
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{
		blobs:    make(map[string][]byte),
		watchers: make(map[string][]chan struct{}),
	}
}

func (m *MemorySessionStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (m *MemorySessionStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemorySessionStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	for _, ch := range m.watchers[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *MemorySessionStorage) WatchRemovals(ctx context.Context, key string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers[key] = append(m.watchers[key], ch)
	m.mu.Unlock()

	out := make(chan struct{})
	go func() {
		defer close(out)
		defer m.unwatch(key, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *MemorySessionStorage) unwatch(key string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.watchers[key]
	for i, c := range list {
		if c == ch {
			m.watchers[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Watchers returns the number of active watchers for key.
func (m *MemorySessionStorage) Watchers(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers[key])
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup  string
	EditorGroup string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.EditorGroup != "" && g == m.EditorGroup {
			return domainauth.RoleEditor
		}
	}
	return domainauth.RoleVisitor
}

// MemoryAccountStore is an in-memory AccountStore keyed by lower-cased email.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]ports.Account
}

// NewMemoryAccountStore creates an empty account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]ports.Account)}
}

func (m *MemoryAccountStore) CreateAccount(_ context.Context, a ports.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(a.Email))
	if _, exists := m.accounts[key]; exists {
		return &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: "this value already exists", Field: "email"}
	}
	a.Email = key
	m.accounts[key] = a
	return nil
}

func (m *MemoryAccountStore) GetAccountByEmail(_ context.Context, email string) (ports.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return ports.Account{}, apperrors.NotFoundf("account not found")
	}
	return a, nil
}
