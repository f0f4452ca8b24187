package statemachine

import (
	"github.com/taskflow-labs/taskflow/internal/platform/env"
)

// Policy governs status changes for which the workflow defines no edge.
type Policy string

const (
	// PolicyAdmin lets board admins set any active status.
	PolicyAdmin Policy = "admin"
	// PolicyAllow lets any editor set any active status.
	PolicyAllow Policy = "allow"
	// PolicyDeny requires a defined transition for every change.
	PolicyDeny Policy = "deny"
)

func PolicyFromEnv() (Policy, error) {
	v, err := env.OneOf("WORKFLOW_UNGUARDED_SET", string(PolicyAdmin), string(PolicyAdmin), string(PolicyAllow), string(PolicyDeny))
	if err != nil {
		return "", err
	}
	return Policy(v), nil
}
