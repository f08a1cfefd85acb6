// Package localauth implements ports.IdentityProvider on a local accounts table
// with bcrypt password hashes.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength matches the sign-up form rule.
const MinPasswordLength = 6

// Config tunes the provider.
type Config struct {
	// Cost is the bcrypt cost; zero uses bcrypt.DefaultCost.
	Cost int
}

// Provider authenticates against an AccountStore.
type Provider struct {
	accounts ports.AccountStore
	cost     int
	// dummyHash keeps sign-in timing similar for unknown emails.
	dummyHash []byte
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a Provider.
func NewProvider(accounts ports.AccountStore, cfg Config) (*Provider, error) {
	if accounts == nil {
		return nil, errors.New("localauth: account store is required")
	}
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("localauth: bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("localauth: prepare dummy hash: %w", err)
	}
	return &Provider{accounts: accounts, cost: cost, dummyHash: dummy}, nil
}

// SignIn verifies the password for the account registered under in.Email.
func (p *Provider) SignIn(ctx context.Context, in ports.Credentials) (domainauth.Identity, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}

	acct, err := p.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(in.Password))
			return domainauth.Identity{}, domainauth.ErrInvalidCredentials
		}
		return domainauth.Identity{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(in.Password)); err != nil {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	return domainauth.Identity{UserID: acct.ID, Email: acct.Email}, nil
}

// SignUp registers a new account with a generated user ID.
func (p *Provider) SignUp(ctx context.Context, in ports.Credentials) (domainauth.Identity, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domainauth.Identity{}, apperrors.ValidationField("email", err)
	}
	if len(in.Password) < MinPasswordLength {
		return domainauth.Identity{}, apperrors.Validation(
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return domainauth.Identity{}, apperrors.ValidationField("password", err)
		}
		return domainauth.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	acct := ports.Account{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
	if err := p.accounts.CreateAccount(ctx, acct); err != nil {
		if apperrors.IsConflict(err) {
			return domainauth.Identity{}, domainauth.ErrAlreadyRegistered
		}
		return domainauth.Identity{}, fmt.Errorf("create account: %w", err)
	}
	return domainauth.Identity{UserID: acct.ID, Email: acct.Email}, nil
}

// SignOut is a no-op; local accounts keep no server-side session.
func (p *Provider) SignOut(context.Context, string) error { return nil }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
