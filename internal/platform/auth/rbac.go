package auth

import (
	"strings"
)

const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var roleLevels = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := roleLevels[strings.ToLower(required)]
	if requiredLevel == 0 {
		return false
	}
	maxLevel := 0
	for _, role := range roles {
		level := roleLevels[strings.ToLower(strings.TrimSpace(role))]
		if level > maxLevel {
			maxLevel = level
		}
	}
	return maxLevel >= requiredLevel
}

// EffectiveRoles merges global roles with the roles granted on one board.
// Custom role names survive so allowed_roles guards can match them.
func EffectiveRoles(global, board []string) []string {
	out := make([]string, 0, len(global)+len(board))
	seen := make(map[string]struct{}, len(global)+len(board))
	for _, list := range [][]string{global, board} {
		for _, role := range list {
			role = strings.ToLower(strings.TrimSpace(role))
			if role == "" {
				continue
			}
			if _, ok := seen[role]; ok {
				continue
			}
			seen[role] = struct{}{}
			out = append(out, role)
		}
	}
	return out
}

// Intersects reports whether any of roles is in allowed, case-insensitively.
func Intersects(roles, allowed []string) bool {
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		for _, r := range roles {
			if strings.ToLower(strings.TrimSpace(r)) == a {
				return true
			}
		}
	}
	return false
}
