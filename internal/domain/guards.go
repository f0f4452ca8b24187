package domain

import (
	"fmt"
	"strings"
)

type GuardKind string

const (
	GuardRequiresAssignee GuardKind = "requires_assignee"
	GuardRequiresComment  GuardKind = "requires_comment"
	GuardAllowedRoles     GuardKind = "allowed_roles"
)

// Guard is a precondition evaluated before a transition may be applied.
type Guard struct {
	Kind  GuardKind `json:"kind" yaml:"kind"`
	Roles []string  `json:"roles,omitempty" yaml:"roles,omitempty"`
}

func (g Guard) Validate() error {
	switch g.Kind {
	case GuardRequiresAssignee, GuardRequiresComment:
		if len(g.Roles) > 0 {
			return Invalid("guards.roles", fmt.Sprintf("roles are only valid for %s", GuardAllowedRoles))
		}
		return nil
	case GuardAllowedRoles:
		if len(g.Roles) == 0 {
			return Invalid("guards.roles", "allowed_roles needs at least one role")
		}
		for _, role := range g.Roles {
			if strings.TrimSpace(role) == "" {
				return Invalid("guards.roles", "role must not be blank")
			}
		}
		return nil
	default:
		return Invalid("guards.kind", fmt.Sprintf("unknown guard kind %q", g.Kind))
	}
}

func (g Guard) String() string {
	if g.Kind == GuardAllowedRoles {
		return fmt.Sprintf("%s[%s]", g.Kind, strings.Join(g.Roles, ","))
	}
	return string(g.Kind)
}

type AutomationKind string

const (
	AutomationAssignCreator   AutomationKind = "assign_creator"
	AutomationMoveToList      AutomationKind = "move_to_list"
	AutomationNotifyAssignees AutomationKind = "notify_assignees"
)

// automationOrder is the fixed post-commit execution order.
var automationOrder = map[AutomationKind]int{
	AutomationAssignCreator:   0,
	AutomationMoveToList:      1,
	AutomationNotifyAssignees: 2,
}

// Automation is a side effect run after a transition commits.
type Automation struct {
	Kind   AutomationKind `json:"kind" yaml:"kind"`
	ListID string         `json:"list_id,omitempty" yaml:"list_id,omitempty"`
}

func (a Automation) Validate() error {
	if _, ok := automationOrder[a.Kind]; !ok {
		return Invalid("automations.kind", fmt.Sprintf("unknown automation kind %q", a.Kind))
	}
	if a.Kind == AutomationMoveToList && strings.TrimSpace(a.ListID) == "" {
		return Invalid("automations.list_id", "move_to_list needs a list id")
	}
	if a.Kind != AutomationMoveToList && a.ListID != "" {
		return Invalid("automations.list_id", fmt.Sprintf("list id is only valid for %s", AutomationMoveToList))
	}
	return nil
}

// AutomationRank is the position of kind in the post-commit order.
func AutomationRank(kind AutomationKind) int {
	if rank, ok := automationOrder[kind]; ok {
		return rank
	}
	return len(automationOrder)
}
