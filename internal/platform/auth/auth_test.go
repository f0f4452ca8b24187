package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

type testAuthenticator struct {
	identity Identity
	err      error
	calls    int
}

func (a *testAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	a.calls++
	return a.identity, a.err
}

func TestMiddleware_Unauthorized(t *testing.T) {
	authn := &testAuthenticator{err: ErrUnauthenticated}
	called := false
	h := Middleware{Authenticator: authn}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "http://example.test/tasks/t1/move", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatalf("handler should not be called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["error"] != "unauthorized" || body["request_id"] != "rid-1" {
		t.Fatalf("body=%v", body)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	authn := &testAuthenticator{err: errors.New("bad token")}
	h := Middleware{Authenticator: authn}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://example.test/tasks/t1/history", nil))

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusUnauthorized || body["error"] != "invalid_token" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestMiddleware_AuditsDenials(t *testing.T) {
	authn := &testAuthenticator{err: errors.New("bad token")}
	var got []DenyEvent
	h := Middleware{
		Authenticator: authn,
		Audit: func(ctx context.Context, ev DenyEvent) error {
			got = append(got, ev)
			return errors.New("audit store down")
		},
	}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "http://example.test/tasks:batch", nil)
	req.Header.Set("X-Request-Id", "rid-9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("audit failure must not change the response: status=%d", rec.Code)
	}
	if len(got) != 1 {
		t.Fatalf("audit calls=%d, want 1", len(got))
	}
	ev := got[0]
	if ev.Reason != "invalid_token" || ev.Status != http.StatusUnauthorized || ev.RequestID != "rid-9" || ev.Path != "/tasks:batch" || ev.Error != "bad token" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestMiddleware_SkipsPrefixesAndStoresIdentity(t *testing.T) {
	authn := &testAuthenticator{identity: Identity{Subject: "alice", Roles: []string{"editor"}}}
	var seen Identity
	h := Middleware{Authenticator: authn, SkipPrefixes: []string{"/healthz"}}.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.test/healthz", nil))
	if authn.calls != 0 {
		t.Fatalf("healthz must skip authentication")
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://example.test/boards/b1/statuses", nil))
	if seen.Subject != "alice" {
		t.Fatalf("identity not stored in context: %+v", seen)
	}
	if actor := seen.Actor(); actor.Subject != "alice" || len(actor.Roles) != 1 {
		t.Fatalf("Actor()=%+v", actor)
	}
}

func TestGatewayHeadersAuthenticator(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	authn, err := NewGatewayHeadersAuthenticator("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewGatewayHeadersAuthenticator() err=%v", err)
	}
	authn.Now = func() time.Time { return now }

	req := httptest.NewRequest(http.MethodPost, "http://example.test/tasks:batch", nil)
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set("X-Request-Id", "rid-9")
	req.Header.Set(HeaderSubject, "bob")
	req.Header.Set(HeaderRoles, "editor,QA")
	req.Header.Set(HeaderInternalAuthTimestamp, ts)
	sig, err := ComputeInternalAuthSignature("test-secret", ts, http.MethodPost, "/tasks:batch", "rid-9", "bob", "", "editor,QA")
	if err != nil {
		t.Fatalf("ComputeInternalAuthSignature() err=%v", err)
	}
	req.Header.Set(HeaderInternalAuthSignature, sig)

	identity, err := authn.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() err=%v", err)
	}
	if identity.Subject != "bob" || len(identity.Roles) != 2 || identity.Roles[1] != "qa" {
		t.Fatalf("identity=%+v", identity)
	}

	req.Header.Set(HeaderRoles, "admin")
	if _, err := authn.Authenticate(context.Background(), req); err == nil {
		t.Fatalf("tampered roles must fail signature check")
	}

	authn.Now = func() time.Time { return now.Add(time.Hour) }
	req.Header.Set(HeaderRoles, "editor,QA")
	if _, err := authn.Authenticate(context.Background(), req); err == nil {
		t.Fatalf("stale timestamp must be rejected")
	}
}

func TestOIDCAuthenticatorRejectsMissingAndMalformedTokens(t *testing.T) {
	cfg := Config{Mode: ModeOIDC, RolesClaim: "roles", EmailClaim: "email", OIDCIssuerURL: "https://issuer.example.test", OIDCClientID: "taskflow"}
	verifier := oidc.NewVerifier(cfg.OIDCIssuerURL, &oidc.StaticKeySet{}, &oidc.Config{ClientID: cfg.OIDCClientID})
	authn := NewOIDCAuthenticatorWithVerifier(cfg, verifier)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	if _, err := authn.Authenticate(context.Background(), req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("missing token err=%v, want ErrUnauthenticated", err)
	}
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	if _, err := authn.Authenticate(context.Background(), req); err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("malformed token err=%v, want verification error", err)
	}
}

func TestExtractRolesClaim(t *testing.T) {
	claims := map[string]any{"roles": []any{"Admin", 7, " "}, "csv": "viewer, editor"}
	if got := extractRolesClaim(claims, "roles"); len(got) != 1 || got[0] != "admin" {
		t.Fatalf("roles=%v", got)
	}
	if got := extractRolesClaim(claims, "csv"); len(got) != 2 {
		t.Fatalf("csv roles=%v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{RolesClaim: "roles", EmailClaim: "email"}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "oidc without issuer", mutate: func(c *Config) { c.Mode = ModeOIDC; c.OIDCClientID = "x" }, wantErr: true},
		{name: "oidc ok", mutate: func(c *Config) { c.Mode = ModeOIDC; c.OIDCClientID = "x"; c.OIDCIssuerURL = "https://i" }},
		{name: "headers without secret", mutate: func(c *Config) { c.Mode = ModeHeaders }, wantErr: true},
		{name: "dev without roles", mutate: func(c *Config) { c.Mode = ModeDev; c.DevSubject = "dev" }, wantErr: true},
		{name: "disabled", mutate: func(c *Config) { c.Mode = ModeDisabled }},
		{name: "unknown", mutate: func(c *Config) { c.Mode = "ldap" }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestConfigFromEnvRejectsUnknownMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "kerberos")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unknown AUTH_MODE")
	}
	t.Setenv("AUTH_MODE", "DEV")
	cfg, err := ConfigFromEnv()
	if err != nil || cfg.Mode != ModeDev {
		t.Fatalf("ConfigFromEnv() cfg=%+v err=%v", cfg, err)
	}
}
