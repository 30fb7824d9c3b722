package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/internal/orchestrator"
	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/pkg/types"
)

// Handler exposes the orchestrator seam over HTTP for the approval UI and
// scheduled triggers.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewHandler creates a REST handler.
func NewHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

// SyncResponse reports the outcome of a sync pass.
type SyncResponse struct {
	RunID   string `json:"run_id"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
}

// TaskResponse is the wire form of a work item.
type TaskResponse struct {
	ID               uint      `json:"id"`
	ExternalKey      string    `json:"external_key"`
	Title            string    `json:"title"`
	LifecycleState   string    `json:"lifecycle_state"`
	Repository       string    `json:"repository,omitempty"`
	BranchName       string    `json:"branch_name,omitempty"`
	RequiresApproval bool      `json:"requires_approval"`
	Notes            string    `json:"notes,omitempty"`
	LastSyncedAt     time.Time `json:"last_synced_at"`
}

// ProgressResponse is the wire form of a ledger entry.
type ProgressResponse struct {
	ID           uint       `json:"id"`
	ActionKind   string     `json:"action_kind"`
	Outcome      string     `json:"outcome"`
	Description  string     `json:"description,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RejectRequest carries the human's rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Sync handles POST /sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.Sync(r.Context())
	if err != nil {
		h.logger.Error("sync failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		RunID:   result.RunID,
		Created: result.Created,
		Updated: result.Updated,
	})
}

// ProcessPending handles POST /tasks/process.
func (h *Handler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.ProcessPendingTasks(r.Context()); err != nil {
		h.logger.Error("processing pending tasks failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks handles GET /tasks?state=.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var states []types.LifecycleState
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := types.ParseLifecycleState(raw)
		if !ok {
			http.Error(w, "unknown lifecycle state: "+raw, http.StatusBadRequest)
			return
		}
		states = append(states, state)
	}

	items, err := h.orch.GetTasks(r.Context(), states...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]TaskResponse, 0, len(items))
	for i := range items {
		out = append(out, taskResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// TaskHistory handles GET /tasks/{id}/progress.
func (h *Handler) TaskHistory(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.orch.History(r.Context(), taskID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	out := make([]ProgressResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ProgressResponse{
			ID:           e.ID,
			ActionKind:   string(e.ActionKind),
			Outcome:      string(e.Outcome),
			Description:  e.Description,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt,
			CompletedAt:  e.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Approve handles POST /tasks/{id}/progress/{pid}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	progressID, ok := parseID(w, r, "pid")
	if !ok {
		return
	}

	if err := h.orch.ApproveTaskProgress(r.Context(), taskID, progressID); err != nil {
		if errors.Is(err, orchestrator.ErrNotAwaitingApproval) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reject handles POST /tasks/{id}/progress/{pid}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	progressID, ok := parseID(w, r, "pid")
	if !ok {
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orch.RejectTaskProgress(r.Context(), taskID, progressID, req.Reason); err != nil {
		writeLookupError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterRoutes registers the REST API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.Sync)
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks/process", h.ProcessPending)
	r.Get("/tasks/{id}/progress", h.TaskHistory)
	r.Post("/tasks/{id}/progress/{pid}/approve", h.Approve)
	r.Post("/tasks/{id}/progress/{pid}/reject", h.Reject)
}

func taskResponse(item *types.WorkItem) TaskResponse {
	resp := TaskResponse{
		ID:               item.ID,
		ExternalKey:      item.ExternalKey,
		Title:            item.Title,
		LifecycleState:   string(item.LifecycleState),
		BranchName:       item.BranchName,
		RequiresApproval: item.RequiresApproval,
		Notes:            item.Notes,
		LastSyncedAt:     item.LastSyncedAt,
	}
	if item.Repository != nil {
		resp.Repository = item.Repository.Name
	}
	return resp
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uint, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.Error(w, "invalid id: "+raw, http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
