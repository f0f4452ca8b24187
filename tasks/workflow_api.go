package main

import (
	"net/http"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/httpserver"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

type statusView struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Color     string    `json:"color,omitempty"`
	Position  int       `json:"position"`
	IsInitial bool      `json:"isInitial"`
	IsFinal   bool      `json:"isFinal"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func statusViewFromDomain(s domain.Status) statusView {
	return statusView{
		ID:        s.ID,
		BoardID:   s.BoardID,
		Name:      s.Name,
		Label:     s.Label,
		Color:     s.Color,
		Position:  s.Position,
		IsInitial: s.IsInitial,
		IsFinal:   s.IsFinal,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt.UTC(),
	}
}

type transitionView struct {
	ID           string              `json:"id"`
	BoardID      string              `json:"boardId"`
	FromStatusID string              `json:"fromStatusId"`
	ToStatusID   string              `json:"toStatusId"`
	Name         string              `json:"name,omitempty"`
	Guards       []domain.Guard      `json:"guards"`
	Automations  []domain.Automation `json:"automations"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func transitionViewFromDomain(t domain.Transition) transitionView {
	guards := t.Guards
	if guards == nil {
		guards = []domain.Guard{}
	}
	automations := t.Automations
	if automations == nil {
		automations = []domain.Automation{}
	}
	return transitionView{
		ID:           t.ID,
		BoardID:      t.BoardID,
		FromStatusID: t.FromStatusID,
		ToStatusID:   t.ToStatusID,
		Name:         t.Name,
		Guards:       guards,
		Automations:  automations,
		CreatedAt:    t.CreatedAt.UTC(),
	}
}

func (api *tasksAPI) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := api.workflows.ListStatuses(r.Context(), actorFromRequest(r), r.PathValue("board_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	out := make([]statusView, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusViewFromDomain(s))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"statuses": out})
}

type createStatusRequest struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Color     string `json:"color,omitempty"`
	Position  *int   `json:"position,omitempty"`
	IsInitial bool   `json:"isInitial,omitempty"`
	IsFinal   bool   `json:"isFinal,omitempty"`
}

func (api *tasksAPI) handleCreateStatus(w http.ResponseWriter, r *http.Request) {
	var req createStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	status, err := api.workflows.CreateStatus(r.Context(), actorFromRequest(r), workflows.StatusInput{
		BoardID:   r.PathValue("board_id"),
		Name:      req.Name,
		Label:     req.Label,
		Color:     req.Color,
		Position:  req.Position,
		IsInitial: req.IsInitial,
		IsFinal:   req.IsFinal,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, statusViewFromDomain(status))
}

type updateStatusRequest struct {
	Label     *string `json:"label,omitempty"`
	Color     *string `json:"color,omitempty"`
	IsInitial *bool   `json:"isInitial,omitempty"`
	IsFinal   *bool   `json:"isFinal,omitempty"`
}

func (api *tasksAPI) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	status, err := api.workflows.UpdateStatus(r.Context(), actorFromRequest(r), r.PathValue("board_id"), r.PathValue("status_id"), workflows.StatusPatch{
		Label:     req.Label,
		Color:     req.Color,
		IsInitial: req.IsInitial,
		IsFinal:   req.IsFinal,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, statusViewFromDomain(status))
}

func (api *tasksAPI) handleDeactivateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := api.workflows.DeactivateStatus(r.Context(), actorFromRequest(r), r.PathValue("board_id"), r.PathValue("status_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, statusViewFromDomain(status))
}

func (api *tasksAPI) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	transitions, err := api.workflows.ListTransitions(r.Context(), actorFromRequest(r), r.PathValue("board_id"))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	out := make([]transitionView, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, transitionViewFromDomain(t))
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"transitions": out})
}

type createTransitionRequest struct {
	FromStatusID string              `json:"fromStatusId"`
	ToStatusID   string              `json:"toStatusId"`
	Name         string              `json:"name,omitempty"`
	Guards       []domain.Guard      `json:"guards,omitempty"`
	Automations  []domain.Automation `json:"automations,omitempty"`
}

func (api *tasksAPI) handleCreateTransition(w http.ResponseWriter, r *http.Request) {
	var req createTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	t, err := api.workflows.CreateTransition(r.Context(), actorFromRequest(r), workflows.TransitionInput{
		BoardID:      r.PathValue("board_id"),
		FromStatusID: req.FromStatusID,
		ToStatusID:   req.ToStatusID,
		Name:         req.Name,
		Guards:       req.Guards,
		Automations:  req.Automations,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, transitionViewFromDomain(t))
}

func (api *tasksAPI) handleDeleteTransition(w http.ResponseWriter, r *http.Request) {
	if err := api.workflows.DeleteTransition(r.Context(), actorFromRequest(r), r.PathValue("board_id"), r.PathValue("transition_id")); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type initWorkflowRequest struct {
	Template string `json:"template"`
}

func (api *tasksAPI) handleInitWorkflow(w http.ResponseWriter, r *http.Request) {
	var req initWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	wf, err := api.workflows.InitFromTemplate(r.Context(), actorFromRequest(r), r.PathValue("board_id"), req.Template)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	statuses := make([]statusView, 0, len(wf.Statuses))
	for _, s := range wf.Statuses {
		statuses = append(statuses, statusViewFromDomain(s))
	}
	transitions := make([]transitionView, 0, len(wf.Transitions))
	for _, t := range wf.Transitions {
		transitions = append(transitions, transitionViewFromDomain(t))
	}
	initial := make([]string, 0, 1)
	for _, s := range wf.Initial() {
		initial = append(initial, s.Name)
	}
	httpserver.WriteJSON(w, http.StatusCreated, map[string]any{
		"statuses":        statuses,
		"transitions":     transitions,
		"initialStatuses": initial,
	})
}
