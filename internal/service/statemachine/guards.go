package statemachine

import (
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
)

type guardInput struct {
	task    domain.Task
	comment string
	roles   []string
}

// guardFunc returns a non-empty reason when the guard does not pass.
type guardFunc func(g domain.Guard, in guardInput) string

var guardTable = map[domain.GuardKind]guardFunc{
	domain.GuardRequiresAssignee: func(g domain.Guard, in guardInput) string {
		if in.task.HasAssignee() {
			return ""
		}
		return "task has no assignee"
	},
	domain.GuardRequiresComment: func(g domain.Guard, in guardInput) string {
		if strings.TrimSpace(in.comment) != "" {
			return ""
		}
		return "a comment is required"
	},
	domain.GuardAllowedRoles: func(g domain.Guard, in guardInput) string {
		if auth.Intersects(in.roles, g.Roles) {
			return ""
		}
		return fmt.Sprintf("requires one of roles %s", strings.Join(g.Roles, ", "))
	},
}

// evaluateGuards runs every guard in order and collects all failures.
func evaluateGuards(guards []domain.Guard, in guardInput) []domain.GuardFailure {
	var failures []domain.GuardFailure
	for _, g := range guards {
		fn, ok := guardTable[g.Kind]
		if !ok {
			failures = append(failures, domain.GuardFailure{Guard: g, Reason: fmt.Sprintf("unknown guard kind %q", g.Kind)})
			continue
		}
		if reason := fn(g, in); reason != "" {
			failures = append(failures, domain.GuardFailure{Guard: g, Reason: reason})
		}
	}
	return failures
}
