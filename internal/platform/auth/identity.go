package auth

import (
	"context"

	"github.com/taskflow-labs/taskflow/internal/domain"
)

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

// Actor is the identity as seen by the task services.
func (i Identity) Actor() domain.Actor {
	return domain.Actor{Subject: i.Subject, Roles: append([]string(nil), i.Roles...)}
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
