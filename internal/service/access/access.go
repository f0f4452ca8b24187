// Package access resolves board-scoped roles for the task services.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

// Roles returns the actor's global roles merged with its grants on boardID.
func Roles(ctx context.Context, members repo.MembershipRepository, actor domain.Actor, boardID string) ([]string, error) {
	var board []string
	if members != nil && strings.TrimSpace(actor.Subject) != "" {
		granted, err := members.BoardRoles(ctx, boardID, actor.Subject)
		if err != nil {
			return nil, fmt.Errorf("lookup board roles: %w", err)
		}
		board = granted
	}
	return auth.EffectiveRoles(actor.Roles, board), nil
}

// Require fails with PermissionDenied unless the actor holds at least
// required on boardID. It returns the effective roles on success.
func Require(ctx context.Context, members repo.MembershipRepository, actor domain.Actor, boardID, required string) ([]string, error) {
	if strings.TrimSpace(actor.Subject) == "" {
		return nil, &domain.PermissionDenied{BoardID: boardID, Required: required}
	}
	roles, err := Roles(ctx, members, actor, boardID)
	if err != nil {
		return nil, err
	}
	if !auth.HasAtLeast(roles, required) {
		return nil, &domain.PermissionDenied{BoardID: boardID, Required: required}
	}
	return roles, nil
}

// ValidateActor rejects an actor without a subject.
func ValidateActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.Subject) == "" {
		return domain.Invalid("actor", "actor subject is required")
	}
	return nil
}
