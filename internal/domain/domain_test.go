package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func testWorkflow() Workflow {
	return NewWorkflow("board-1",
		[]Status{
			{ID: "s-done", BoardID: "board-1", Name: "done", Label: "Done", Position: 2, IsFinal: true, IsActive: true},
			{ID: "s-todo", BoardID: "board-1", Name: "todo", Label: "To do", Position: 0, IsInitial: true, IsActive: true},
			{ID: "s-doing", BoardID: "board-1", Name: "in_progress", Label: "In progress", Position: 1, IsActive: true},
			{ID: "s-old", BoardID: "board-1", Name: "icebox", Label: "Icebox", Position: 3, IsActive: false},
		},
		[]Transition{
			{ID: "t-1", BoardID: "board-1", FromStatusID: "s-todo", ToStatusID: "s-doing"},
			{ID: "t-2", BoardID: "board-1", FromStatusID: "s-doing", ToStatusID: "s-done", Guards: []Guard{{Kind: GuardRequiresComment}}},
		},
	)
}

func TestWorkflowLookups(t *testing.T) {
	w := testWorkflow()
	if w.Statuses[0].Name != "todo" || w.Statuses[2].Name != "done" {
		t.Fatalf("statuses not ordered by position: %+v", w.Statuses)
	}
	if _, ok := w.ActiveStatus("icebox"); ok {
		t.Fatalf("inactive status must not resolve as active")
	}
	if _, ok := w.StatusByName("icebox"); !ok {
		t.Fatalf("inactive status must still resolve by name")
	}
	edge, ok := w.Edge("s-doing", "s-done")
	if !ok || edge.ID != "t-2" {
		t.Fatalf("Edge()=%+v ok=%v", edge, ok)
	}
	if _, ok := w.Edge("s-done", "s-todo"); ok {
		t.Fatalf("unexpected edge done->todo")
	}
	if got := w.NextPosition(); got != 4 {
		t.Fatalf("NextPosition()=%d, want 4", got)
	}
	if initial := w.Initial(); len(initial) != 1 || initial[0].ID != "s-todo" {
		t.Fatalf("Initial()=%+v", initial)
	}
}

func TestWorkflowCloneIsIndependent(t *testing.T) {
	w := testWorkflow()
	c := w.Clone()
	c.Statuses[0].Label = "changed"
	c.Transitions[1].Guards[0].Kind = GuardRequiresAssignee
	if w.Statuses[0].Label == "changed" {
		t.Fatalf("clone shares status storage")
	}
	if w.Transitions[1].Guards[0].Kind != GuardRequiresComment {
		t.Fatalf("clone shares guard storage")
	}
}

func TestTaskStatusName(t *testing.T) {
	w := testWorkflow()
	name, typed := Task{StatusID: "s-doing"}.StatusName(w)
	if !typed || name != "in_progress" {
		t.Fatalf("StatusName()=%q typed=%v", name, typed)
	}
	name, typed = Task{LegacyStatus: " Waiting "}.StatusName(w)
	if typed || name != "Waiting" {
		t.Fatalf("legacy StatusName()=%q typed=%v", name, typed)
	}
}

func TestTransitionValidate(t *testing.T) {
	tests := []struct {
		name string
		tr   Transition
		want error
	}{
		{
			name: "self transition",
			tr:   Transition{ID: "t", BoardID: "b", FromStatusID: "s", ToStatusID: "s"},
			want: ErrConflict,
		},
		{
			name: "empty role set",
			tr:   Transition{ID: "t", BoardID: "b", FromStatusID: "a", ToStatusID: "c", Guards: []Guard{{Kind: GuardAllowedRoles}}},
			want: ErrValidation,
		},
		{
			name: "move without list",
			tr:   Transition{ID: "t", BoardID: "b", FromStatusID: "a", ToStatusID: "c", Automations: []Automation{{Kind: AutomationMoveToList}}},
			want: ErrValidation,
		},
		{
			name: "unknown guard",
			tr:   Transition{ID: "t", BoardID: "b", FromStatusID: "a", ToStatusID: "c", Guards: []Guard{{Kind: "requires_coffee"}}},
			want: ErrValidation,
		},
		{
			name: "valid",
			tr: Transition{ID: "t", BoardID: "b", FromStatusID: "a", ToStatusID: "c",
				Guards:      []Guard{{Kind: GuardAllowedRoles, Roles: []string{"admin"}}},
				Automations: []Automation{{Kind: AutomationMoveToList, ListID: "l"}, {Kind: AutomationNotifyAssignees}}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tr.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate() err=%v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestStatusValidate(t *testing.T) {
	valid := Status{ID: "s", BoardID: "b", Name: "in_progress", Label: "In progress", Color: "#aabbcc"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	for _, name := range []string{"", "In Progress", "-x", "has space"} {
		s := valid
		s.Name = name
		if err := s.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("name %q: err=%v, want validation", name, err)
		}
	}
	s := valid
	s.Color = "red"
	if err := s.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("color: err=%v, want validation", err)
	}
}

func TestHistoryIntegrityStable(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := HistoryEntry{TaskID: "t1", BoardID: "b1", FromStatus: "todo", ToStatus: "in_progress", Actor: "alice", OccurredAt: at}
	a, err := ComputeHistoryIntegrity(entry)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	entry.ID = 99
	b, _ := ComputeHistoryIntegrity(entry)
	if a != b {
		t.Fatalf("storage id must not affect integrity")
	}
	entry.Comment = "edited"
	c, _ := ComputeHistoryIntegrity(entry)
	if a == c {
		t.Fatalf("content change must change integrity")
	}
}

func TestHistoryIntegritySurvivesMicrosecondStorage(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	entry := HistoryEntry{TaskID: "t1", BoardID: "b1", FromStatus: "todo", ToStatus: "done", Actor: "alice", OccurredAt: at}
	written, err := ComputeHistoryIntegrity(entry)
	if err != nil {
		t.Fatalf("integrity: %v", err)
	}
	entry.OccurredAt = at.Truncate(time.Microsecond)
	reread, _ := ComputeHistoryIntegrity(entry)
	if written != reread {
		t.Fatalf("integrity changed after microsecond truncation: %s != %s", written, reread)
	}
	if got := StoredTime(at.In(time.FixedZone("x", 3600))); !got.Equal(at.Truncate(time.Microsecond)) || got.Location() != time.UTC {
		t.Fatalf("StoredTime=%v", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("apply: %w", &BatchItemError{Index: 1, TaskID: "t2", Err: &PermissionDenied{TaskIDs: []string{"t2"}, Required: "editor"}})
	if !errors.Is(wrapped, ErrPermissionDenied) {
		t.Fatalf("expected permission denied through batch item error")
	}
	var item *BatchItemError
	if !errors.As(wrapped, &item) || item.TaskID != "t2" {
		t.Fatalf("expected batch item error for t2, got %v", wrapped)
	}
	gv := &GuardViolation{TaskID: "t1", Failures: []GuardFailure{{Guard: Guard{Kind: GuardRequiresComment}, Reason: "comment is required"}}}
	if !errors.Is(gv, ErrGuardViolation) || errors.Is(gv, ErrValidation) {
		t.Fatalf("guard violation classification wrong")
	}
	if !errors.Is(NotFound("task", "x"), ErrNotFound) || !errors.Is(Conflict("dup"), ErrConflict) {
		t.Fatalf("sentinel mismatch")
	}
}
