package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mohae/deepcopy"
)

var (
	statusNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)
	colorPattern      = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// Status is a named, board-scoped workflow state.
type Status struct {
	ID        string
	BoardID   string
	Name      string
	Label     string
	Color     string
	Position  int
	IsInitial bool
	IsFinal   bool
	IsActive  bool
	CreatedAt time.Time
	CreatedBy string
}

func (s Status) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("status id is required")
	}
	if strings.TrimSpace(s.BoardID) == "" {
		return Invalid("board_id", "board id is required")
	}
	if err := ValidateStatusName(s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.Label) == "" {
		return Invalid("label", "label is required")
	}
	if s.Color != "" && !colorPattern.MatchString(s.Color) {
		return Invalid("color", "color must be #RRGGBB")
	}
	if s.Position < 0 {
		return Invalid("position", "position must be >= 0")
	}
	return nil
}

func ValidateStatusName(name string) error {
	if !statusNamePattern.MatchString(name) {
		return Invalid("name", fmt.Sprintf("status name %q must match %s", name, statusNamePattern.String()))
	}
	return nil
}

// Transition is a directed, guarded edge between two statuses of one board.
type Transition struct {
	ID           string
	BoardID      string
	FromStatusID string
	ToStatusID   string
	Name         string
	Guards       []Guard
	Automations  []Automation
	CreatedAt    time.Time
	CreatedBy    string
}

func (t Transition) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("transition id is required")
	}
	if strings.TrimSpace(t.BoardID) == "" {
		return Invalid("board_id", "board id is required")
	}
	if strings.TrimSpace(t.FromStatusID) == "" {
		return Invalid("from_status_id", "from status is required")
	}
	if strings.TrimSpace(t.ToStatusID) == "" {
		return Invalid("to_status_id", "to status is required")
	}
	if t.FromStatusID == t.ToStatusID {
		return Conflict("self-transition is not allowed")
	}
	for i, g := range t.Guards {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("guards[%d]: %w", i, err)
		}
	}
	for i, a := range t.Automations {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("automations[%d]: %w", i, err)
		}
	}
	return nil
}

// Workflow is a point-in-time view of one board's states and edges. Values
// returned by the registry are private copies and never observe later edits.
type Workflow struct {
	BoardID     string
	Statuses    []Status
	Transitions []Transition
}

// NewWorkflow copies the given rows and orders statuses by position.
func NewWorkflow(boardID string, statuses []Status, transitions []Transition) Workflow {
	w := Workflow{
		BoardID:     boardID,
		Statuses:    append([]Status(nil), statuses...),
		Transitions: append([]Transition(nil), transitions...),
	}
	sort.SliceStable(w.Statuses, func(i, j int) bool { return w.Statuses[i].Position < w.Statuses[j].Position })
	return w.Clone()
}

func (w Workflow) Clone() Workflow {
	return deepcopy.Copy(w).(Workflow)
}

func (w Workflow) StatusByID(id string) (Status, bool) {
	for _, s := range w.Statuses {
		if s.ID == id {
			return s, true
		}
	}
	return Status{}, false
}

func (w Workflow) StatusByName(name string) (Status, bool) {
	for _, s := range w.Statuses {
		if s.Name == name {
			return s, true
		}
	}
	return Status{}, false
}

// ActiveStatus resolves name to an active status of the board.
func (w Workflow) ActiveStatus(name string) (Status, bool) {
	s, ok := w.StatusByName(name)
	if !ok || !s.IsActive {
		return Status{}, false
	}
	return s, true
}

func (w Workflow) TransitionByID(id string) (Transition, bool) {
	for _, t := range w.Transitions {
		if t.ID == id {
			return t, true
		}
	}
	return Transition{}, false
}

// Edge returns the transition for the ordered pair, if defined.
func (w Workflow) Edge(fromStatusID, toStatusID string) (Transition, bool) {
	for _, t := range w.Transitions {
		if t.FromStatusID == fromStatusID && t.ToStatusID == toStatusID {
			return t, true
		}
	}
	return Transition{}, false
}

// Initial lists statuses flagged initial. More than one may be flagged.
func (w Workflow) Initial() []Status {
	out := make([]Status, 0, 1)
	for _, s := range w.Statuses {
		if s.IsInitial && s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

func (w Workflow) NextPosition() int {
	next := 0
	for _, s := range w.Statuses {
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	return next
}
