package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
	"github.com/canvashq/canvas/internal/websocket"
)

type TaskHandler struct {
	tasks  *store.TaskStore
	engine *economy.TaskEngine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewTaskHandler(tasks *store.TaskStore, engine *economy.TaskEngine, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, engine: engine, hub: hub, logger: logger}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type completeRequest struct {
	AccountID int64 `json:"account_id"`
}

// Complete records a task completion for the account and credits the reward.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	taskKey := r.PathValue("key")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	completion, entry, err := h.engine.Complete(r.Context(), req.AccountID, taskKey, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "completed", completion.ID, map[string]any{
		"account_id": req.AccountID,
		"task":       taskKey,
	}))
	if entry != nil && h.hub != nil {
		websocket.BroadcastLedgerEntry(h.hub, entry)
	}

	writeJSON(w, http.StatusCreated, completion)
}

func (h *TaskHandler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	completions, err := h.tasks.ListCompletionsByAccount(id)
	if err != nil {
		h.logger.Error("list completions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list completions")
		return
	}
	if completions == nil {
		completions = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, completions)
}
