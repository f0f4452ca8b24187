package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HistoryEntry is one immutable status change of a task. Status and transition
// ids are weak references; FromStatus and ToStatus keep the names as they were.
type HistoryEntry struct {
	ID              int64
	TaskID          string
	BoardID         string
	FromStatus      string
	ToStatus        string
	FromStatusID    string
	ToStatusID      string
	TransitionID    string
	Actor           string
	Comment         string
	OccurredAt      time.Time
	IntegritySHA256 string
}

func (h HistoryEntry) Validate() error {
	if strings.TrimSpace(h.TaskID) == "" {
		return errors.New("task id is required")
	}
	if strings.TrimSpace(h.BoardID) == "" {
		return errors.New("board id is required")
	}
	if strings.TrimSpace(h.ToStatus) == "" {
		return errors.New("to status is required")
	}
	if strings.TrimSpace(h.Actor) == "" {
		return errors.New("actor is required")
	}
	if h.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// StoredTime rounds t down to the microsecond precision of TIMESTAMPTZ, so a
// hash taken before the insert can be recomputed from the stored row.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHistoryIntegrity hashes the entry content, excluding the storage id.
func ComputeHistoryIntegrity(h HistoryEntry) (string, error) {
	type integrityInput struct {
		TaskID       string    `json:"task_id"`
		BoardID      string    `json:"board_id"`
		FromStatus   string    `json:"from_status"`
		ToStatus     string    `json:"to_status"`
		FromStatusID string    `json:"from_status_id,omitempty"`
		ToStatusID   string    `json:"to_status_id,omitempty"`
		TransitionID string    `json:"transition_id,omitempty"`
		Actor        string    `json:"actor"`
		Comment      string    `json:"comment,omitempty"`
		OccurredAt   time.Time `json:"occurred_at"`
	}
	blob, err := json.Marshal(integrityInput{
		TaskID:       h.TaskID,
		BoardID:      h.BoardID,
		FromStatus:   h.FromStatus,
		ToStatus:     h.ToStatus,
		FromStatusID: h.FromStatusID,
		ToStatusID:   h.ToStatusID,
		TransitionID: h.TransitionID,
		Actor:        h.Actor,
		Comment:      h.Comment,
		OccurredAt:   StoredTime(h.OccurredAt),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Actor is the authenticated subject performing an operation, with its
// globally granted roles.
type Actor struct {
	Subject string
	Roles   []string
}
