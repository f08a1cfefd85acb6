package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/target/quill/internal/domain/article"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Mode != AuthModeLocal {
		t.Errorf("expected local auth mode, got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.Session.Key != "quill:userAuth" {
		t.Errorf("unexpected session key %q", cfg.Auth.Session.Key)
	}
	if cfg.Auth.Session.MaxAge != 24*time.Hour {
		t.Errorf("expected 24h max age, got %s", cfg.Auth.Session.MaxAge)
	}
	if cfg.Sync.Sort() != article.SortCreatedDesc {
		t.Errorf("expected created_desc default sort, got %q", cfg.Sync.Sort())
	}
	if cfg.Sync.Table != "articles" || cfg.Sync.NotifyChannel != "quill_changes" {
		t.Errorf("unexpected sync defaults %+v", cfg.Sync)
	}
	if cfg.Observability.Metrics.IsEnabled() {
		t.Error("metrics should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "OIDC")
	t.Setenv("ADMIN_GROUP", "cn=admins,ou=groups,dc=example,dc=org")
	t.Setenv("EDITOR_GROUP", "cn=editors,ou=groups,dc=example,dc=org")
	t.Setenv("OIDC_CLIENT_ID", "app-client")
	t.Setenv("OIDC_CLIENT_SECRET", "super-secret")
	t.Setenv("OIDC_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("OIDC_SCOPE", "openid profile email")
	t.Setenv("DEV_AUTH_USER_ID", "dev-user")
	t.Setenv("DEV_AUTH_EMAIL", "dev@example.com")
	t.Setenv("DEV_AUTH_GROUPS", "admins;devs")
	t.Setenv("SESSION_MAX_AGE", "2h")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	expected := AuthConfig{
		Mode: AuthModeOIDC,
		OIDC: OIDCConfig{
			ClientID:     "app-client",
			ClientSecret: "super-secret",
			Scope:        "openid profile email",
			DiscoveryURL: "https://login.example.com/.well-known/openid-configuration",
		},
		DevAuth: DevAuthConfig{
			UserID: "dev-user",
			Email:  "dev@example.com",
			Name:   "Dev User",
			Groups: []string{"admins", "devs"},
		},
		BcryptCost: 10,
		Session: SessionConfig{
			Key:            "quill:userAuth",
			MaxAge:         2 * time.Hour,
			RemovalChannel: "quill:session:removed",
		},
		AdminGroup:  "cn=admins,ou=groups,dc=example,dc=org",
		EditorGroup: "cn=editors,ou=groups,dc=example,dc=org",
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if !cfg.Auth.HasRoleGroups() {
		t.Fatal("expected role groups to be configured")
	}
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var m AuthMode
	if err := m.UnmarshalText([]byte("oauth")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if err := m.UnmarshalText([]byte(" Dev ")); err != nil || m != AuthModeDev {
		t.Fatalf("expected dev mode, got %q (%v)", m, err)
	}
}

func TestAuthConfig_SanitizeAndValidate(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeOIDC, BcryptCost: 99, Session: SessionConfig{Key: " ", MaxAge: -time.Second}}
	cfg.Sanitize()

	if cfg.BcryptCost != 10 {
		t.Errorf("expected bcrypt cost reset to 10, got %d", cfg.BcryptCost)
	}
	if cfg.Session.Key != "quill:userAuth" || cfg.Session.MaxAge != 24*time.Hour {
		t.Errorf("expected session defaults, got %+v", cfg.Session)
	}
	if cfg.Session.RemovalChannel != "quill:session:removed" {
		t.Errorf("unexpected removal channel %q", cfg.Session.RemovalChannel)
	}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OIDC_DISCOVERY_URL") {
		t.Fatalf("expected discovery URL error, got %v", err)
	}

	cfg.OIDC.DiscoveryURL = "https://login.example.com"
	cfg.OIDC.ClientID = "client"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppConfig_DevModeRequiredForDevAuth(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg := AppConfig{Auth: AuthConfig{Mode: AuthModeDev, DevAuth: DevAuthConfig{UserID: "u", Email: "e@example.com"}}}
	cfg.Sanitize()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected dev auth to be rejected outside dev mode")
	}

	t.Setenv("APP_ENV", "development")
	cfg.Sanitize()
	if !cfg.IsDev {
		t.Fatal("expected APP_ENV=development to enable dev mode")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSyncConfig(t *testing.T) {
	cfg := SyncConfig{DefaultSort: "sideways", Kinds: []string{" INSERT ", "", "deleted"}}
	cfg.Sanitize()

	if cfg.DefaultSort != string(article.DefaultSort) {
		t.Errorf("expected unknown sort to fall back, got %q", cfg.DefaultSort)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("expected request timeout default, got %s", cfg.RequestTimeout)
	}
	kinds, err := cfg.FeedKinds()
	if err != nil {
		t.Fatalf("FeedKinds: %v", err)
	}
	if !reflect.DeepEqual(kinds, []article.ChangeKind{article.Inserted, article.Deleted}) {
		t.Errorf("unexpected kinds %v", kinds)
	}

	cfg.Kinds = []string{"truncate"}
	if _, err := cfg.FeedKinds(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDBConfig_Sanitize(t *testing.T) {
	cfg := DBConfig{Port: 70000, SSLMode: " ", MaxOpenConns: 1}
	cfg.Sanitize()
	if cfg.Port != 5432 || cfg.SSLMode != "disable" || cfg.MaxOpenConns != 2 {
		t.Fatalf("unexpected sanitized db config %+v", cfg)
	}

	r := RedisConfig{URI: " localhost:6379 ", ClusterNodes: []string{"", " a:1 "}, DB: -1}
	r.Sanitize()
	if r.URI != "localhost:6379" || !reflect.DeepEqual(r.ClusterNodes, []string{"a:1"}) || r.DB != 0 {
		t.Fatalf("unexpected sanitized redis config %+v", r)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        ".quill.",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "quill" {
		t.Fatalf("expected prefix dots trimmed, got %q", cfg.Prefix)
	}
}

func TestObservabilityLoggingConfig(t *testing.T) {
	cfg := ObservabilityLoggingConfig{Level: " DEBUG "}
	cfg.Sanitize()
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}

	cfg = ObservabilityLoggingConfig{Level: "verbose"}
	cfg.Sanitize()
	if cfg.Level != "info" {
		t.Fatalf("expected unknown level to fall back to info, got %q", cfg.Level)
	}
}
