// Package oidc provides an IdentityProvider backed by an OpenID Connect issuer.
// Credentials are exchanged with the OAuth2 resource owner password grant and
// the returned ID token is verified before its claims are trusted.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Provider implements ports.IdentityProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	issuer     *gooidc.Provider
	verifier   *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// NewProvider performs discovery and returns a ready provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{httpClient: httpClient}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(p.clientContext(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.issuer = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       scopes,
		Endpoint:     op.Endpoint(),
	}
	return p, nil
}

// SignIn exchanges the credentials for tokens and maps the verified claims to an identity.
func (p *Provider) SignIn(ctx context.Context, in ports.Credentials) (domainauth.Identity, error) {
	if in.Email == "" || in.Password == "" {
		return domainauth.Identity{}, domainauth.ErrInvalidCredentials
	}
	ctx = p.clientContext(ctx)

	token, err := p.config.PasswordCredentialsToken(ctx, in.Email, in.Password)
	if err != nil {
		return domainauth.Identity{}, mapTokenError(err)
	}

	fields, err := p.extractFromIDToken(ctx, token)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}
	if fields.email == "" || fields.userID == "" {
		if fillErr := p.fillFromUserInfo(ctx, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.userID == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}
	if fields.email == "" {
		fields.email = in.Email
	}
	if fields.emailVerified != nil && !*fields.emailVerified {
		return domainauth.Identity{}, domainauth.ErrEmailNotConfirmed
	}

	return domainauth.Identity{
		UserID: fields.userID,
		Email:  fields.email,
		Name:   fields.displayName(),
		Groups: fields.groups,
	}, nil
}

// SignUp is not offered by OIDC issuers; accounts are provisioned at the issuer.
func (p *Provider) SignUp(context.Context, ports.Credentials) (domainauth.Identity, error) {
	return domainauth.Identity{}, domainauth.ErrSignUpDisabled
}

// SignOut is a no-op: tokens are not retained after sign-in.
func (p *Provider) SignOut(context.Context, string) error { return nil }

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// mapTokenError translates token endpoint failures into provider sentinels.
func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorCode == "invalid_grant":
			return fmt.Errorf("%w: %s", domainauth.ErrInvalidCredentials, re.ErrorDescription)
		case re.Response != nil && re.Response.StatusCode == http.StatusTooManyRequests:
			return domainauth.ErrRateLimited
		}
	}
	return fmt.Errorf("password grant: %w", err)
}

type idFields struct {
	userID        string
	email         string
	name          string
	givenName     string
	familyName    string
	groups        []string
	emailVerified *bool
}

func (f idFields) displayName() string {
	if f.name != "" {
		return f.name
	}
	return strings.TrimSpace(f.givenName + " " + f.familyName)
}

// claimSet is a superset of the standard OIDC and AD/ADFS claim shapes. Both
// the ID token and the userinfo response decode into it.
type claimSet struct {
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified *bool    `json:"email_verified"`
	Name          string   `json:"name"`
	Groups        []string `json:"groups"`

	SamAccountName string   `json:"samaccountname"`
	FirstName      string   `json:"firstname"`
	LastName       string   `json:"lastname"`
	Mail           string   `json:"mail"`
	MemberOf       []string `json:"memberof"`
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	if !slices.Contains(p.config.Scopes, gooidc.ScopeOpenID) {
		return idFields{}, nil
	}
	rawID, err := idTokenOf(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var c claimSet
	if claimsErr := idTok.Claims(&c); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return c.fields(), nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := p.issuer.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var c claimSet
	if claimsErr := ui.Claims(&c); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	f.merge(c.fields())
	return nil
}

// fields maps claims to identity fields, preferring AD account names over the
// opaque subject.
func (c claimSet) fields() idFields {
	groups := c.Groups
	if len(groups) == 0 {
		groups = c.MemberOf
	}
	return idFields{
		userID:        firstNonEmpty(c.SamAccountName, c.Sub),
		email:         firstNonEmpty(c.Email, c.Mail),
		name:          c.Name,
		givenName:     c.FirstName,
		familyName:    c.LastName,
		groups:        groups,
		emailVerified: c.EmailVerified,
	}
}

// merge fills only the fields f left empty.
func (f *idFields) merge(o idFields) {
	f.userID = firstNonEmpty(f.userID, o.userID)
	f.email = firstNonEmpty(f.email, o.email)
	f.name = firstNonEmpty(f.name, o.name)
	f.givenName = firstNonEmpty(f.givenName, o.givenName)
	f.familyName = firstNonEmpty(f.familyName, o.familyName)
	if len(f.groups) == 0 {
		f.groups = o.groups
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func idTokenOf(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", errors.New("missing id_token in token response")
	}
	return raw, nil
}
