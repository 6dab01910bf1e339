package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
	"github.com/canvashq/canvas/internal/websocket"
)

type ScenarioHandler struct {
	scenarios *store.ScenarioStore
	engine    *economy.ConsumptionEngine
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewScenarioHandler(scenarios *store.ScenarioStore, engine *economy.ConsumptionEngine, hub *websocket.Hub, logger *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{scenarios: scenarios, engine: engine, hub: hub, logger: logger}
}

func (h *ScenarioHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *ScenarioHandler) List(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.scenarios.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list scenarios")
		return
	}
	if scenarios == nil {
		scenarios = []model.ConsumptionScenario{}
	}
	writeJSON(w, http.StatusOK, scenarios)
}

type purchaseRequest struct {
	AccountID      int64  `json:"account_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Purchase debits the scenario price and grants its effects. Clients should
// send an idempotency key so a retried request cannot double-charge; one is
// generated when absent.
func (h *ScenarioHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	scenarioKey := r.PathValue("key")

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	purchase, entry, err := h.engine.Purchase(r.Context(), req.AccountID, scenarioKey, req.IdempotencyKey, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("scenario", "purchased", purchase.ID, map[string]any{
		"account_id": req.AccountID,
		"scenario":   scenarioKey,
	}))
	if entry != nil && h.hub != nil {
		websocket.BroadcastLedgerEntry(h.hub, entry)
	}

	writeJSON(w, http.StatusCreated, purchase)
}

// ActiveEffects returns the account's unexpired effect grants.
func (h *ScenarioHandler) ActiveEffects(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	effects, err := h.engine.ActiveEffects(id, time.Now().UTC())
	if err != nil {
		h.logger.Error("list active effects failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list effects")
		return
	}
	if effects == nil {
		effects = []model.AccountEffect{}
	}
	writeJSON(w, http.StatusOK, effects)
}
