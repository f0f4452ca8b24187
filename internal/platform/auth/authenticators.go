package auth

import (
	"context"
	"fmt"
	"net/http"
)

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type DevAuthenticator struct {
	identity Identity
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{
		identity: Identity{
			Subject: cfg.DevSubject,
			Email:   cfg.DevEmail,
			Roles:   cfg.DevRoles,
		},
	}
}

func (a *DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return a.identity, nil
}

// AnonymousAuthenticator admits every request without global roles; access
// then rests on board membership alone.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return Identity{Subject: "anonymous"}, nil
}

// NewAuthenticator builds the authenticator selected by cfg.Mode.
func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	switch cfg.Mode {
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	case ModeHeaders:
		return NewGatewayHeadersAuthenticator(cfg.HeadersSecret, cfg.HeadersMaxSkew)
	case ModeDev:
		return NewDevAuthenticator(cfg), nil
	case ModeDisabled:
		return AnonymousAuthenticator{}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}
