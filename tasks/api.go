package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/platform/httpserver"
	"github.com/taskflow-labs/taskflow/internal/platform/requestid"
	"github.com/taskflow-labs/taskflow/internal/service/batch"
	"github.com/taskflow-labs/taskflow/internal/service/ordering"
	"github.com/taskflow-labs/taskflow/internal/service/statemachine"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

type tasksAPI struct {
	logger    *slog.Logger
	workflows *workflows.Service
	engine    *statemachine.Engine
	ordering  *ordering.Service
	batch     *batch.Service
}

func newTasksAPI(logger *slog.Logger, wf *workflows.Service, engine *statemachine.Engine, ord *ordering.Service, b *batch.Service) *tasksAPI {
	return &tasksAPI{
		logger:    logger,
		workflows: wf,
		engine:    engine,
		ordering:  ord,
		batch:     b,
	}
}

func (api *tasksAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tasks/{task_id}/transitions", api.handleTransition)
	mux.HandleFunc("GET /tasks/{task_id}/history", api.handleHistory)
	mux.HandleFunc("POST /tasks/{task_id}/move", api.handleMove)
	mux.HandleFunc("POST /tasks:batch", api.handleBatch)

	mux.HandleFunc("GET /boards/{board_id}/statuses", api.handleListStatuses)
	mux.HandleFunc("POST /boards/{board_id}/statuses", api.handleCreateStatus)
	mux.HandleFunc("PATCH /boards/{board_id}/statuses/{status_id}", api.handleUpdateStatus)
	mux.HandleFunc("POST /boards/{board_id}/statuses/{status_id}/deactivate", api.handleDeactivateStatus)
	mux.HandleFunc("GET /boards/{board_id}/transitions", api.handleListTransitions)
	mux.HandleFunc("POST /boards/{board_id}/transitions", api.handleCreateTransition)
	mux.HandleFunc("DELETE /boards/{board_id}/transitions/{transition_id}", api.handleDeleteTransition)
	mux.HandleFunc("POST /boards/{board_id}/workflow/init", api.handleInitWorkflow)
}

type transitionRequest struct {
	TargetStatus string `json:"targetStatus"`
	Comment      string `json:"comment,omitempty"`
	TransitionID string `json:"transitionId,omitempty"`
}

type transitionResponse struct {
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

func (api *tasksAPI) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	res, err := api.engine.Apply(r.Context(), actorFromRequest(r), statemachine.ApplyRequest{
		TaskID:       r.PathValue("task_id"),
		TargetStatus: req.TargetStatus,
		Comment:      req.Comment,
		TransitionID: req.TransitionID,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, transitionResponse{OldStatus: res.OldStatus, NewStatus: res.NewStatus})
}

type historyItem struct {
	FromStatus   string    `json:"fromStatus"`
	ToStatus     string    `json:"toStatus"`
	Actor        string    `json:"actor"`
	Comment      string    `json:"comment,omitempty"`
	TransitionID string    `json:"transitionId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (api *tasksAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntQuery(r, "limit", 0)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_limit", nil)
		return
	}
	entries, err := api.engine.History(r.Context(), actorFromRequest(r), r.PathValue("task_id"), limit)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	out := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyItem{
			FromStatus:   e.FromStatus,
			ToStatus:     e.ToStatus,
			Actor:        e.Actor,
			Comment:      e.Comment,
			TransitionID: e.TransitionID,
			Timestamp:    e.OccurredAt.UTC(),
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"history": out})
}

type moveRequest struct {
	TargetListID   string `json:"targetListId"`
	TargetPosition *int   `json:"targetPosition"`
}

type moveResponse struct {
	ListID   string `json:"listId"`
	Position int    `json:"position"`
}

func (api *tasksAPI) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if req.TargetPosition == nil {
		api.writeDomainError(w, r, domain.Invalid("targetPosition", "target position is required"))
		return
	}
	p, err := api.ordering.Move(r.Context(), actorFromRequest(r), ordering.MoveRequest{
		TaskID:         r.PathValue("task_id"),
		TargetListID:   req.TargetListID,
		TargetPosition: *req.TargetPosition,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, moveResponse{ListID: p.ListID, Position: p.Position})
}

type batchRequest struct {
	TaskIDs   []string      `json:"taskIds"`
	Operation string        `json:"operation"`
	Payload   batch.Payload `json:"payload"`
}

func (api *tasksAPI) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	res, err := api.batch.Execute(r.Context(), actorFromRequest(r), batch.Request{
		TaskIDs:   req.TaskIDs,
		Operation: batch.Operation(strings.ToLower(strings.TrimSpace(req.Operation))),
		Payload:   req.Payload,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"succeededCount": res.Succeeded})
}

// writeDomainError maps typed domain errors onto HTTP statuses.
func (api *tasksAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		guard      *domain.GuardViolation
		denied     *domain.PermissionDenied
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		item       *domain.BatchItemError
	)
	details := map[string]any{}
	if errors.As(err, &item) {
		details["index"] = item.Index
		details["taskId"] = item.TaskID
	}

	switch {
	case errors.As(err, &validation):
		if validation.Field != "" {
			details["field"] = validation.Field
		}
		details["reason"] = validation.Reason
		api.writeError(w, r, http.StatusBadRequest, "validation_error", details)
	case errors.As(err, &guard):
		failures := make([]map[string]string, 0, len(guard.Failures))
		for _, f := range guard.Failures {
			failures = append(failures, map[string]string{"guard": f.Guard.String(), "reason": f.Reason})
		}
		details["taskId"] = guard.TaskID
		details["transitionId"] = guard.TransitionID
		details["failures"] = failures
		api.writeError(w, r, http.StatusUnprocessableEntity, "guard_violation", details)
	case errors.As(err, &denied):
		details["taskIds"] = denied.TaskIDs
		details["required"] = denied.Required
		api.writeError(w, r, http.StatusForbidden, "permission_denied", details)
	case errors.As(err, &notFound):
		details["kind"] = notFound.Kind
		details["id"] = notFound.ID
		api.writeError(w, r, http.StatusNotFound, "not_found", details)
	case errors.As(err, &conflict):
		if conflict.TaskID != "" {
			details["taskId"] = conflict.TaskID
		}
		details["reason"] = conflict.Reason
		api.writeError(w, r, http.StatusConflict, "conflict", details)
	default:
		api.logger.Error("request failed",
			"request_id", r.Header.Get(requestid.Header),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error", nil)
	}
}

func (api *tasksAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string, details map[string]any) {
	body := map[string]any{
		"error":      code,
		"request_id": r.Header.Get(requestid.Header),
	}
	if len(details) > 0 {
		body["details"] = details
	}
	httpserver.WriteJSON(w, status, body)
}

func actorFromRequest(r *http.Request) domain.Actor {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return domain.Actor{}
	}
	return identity.Actor()
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}

func parseIntQuery(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
