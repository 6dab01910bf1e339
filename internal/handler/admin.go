package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/backup"
	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
	"github.com/canvashq/canvas/internal/websocket"
)

// AdminHandler exposes the operator surface: economic config changes,
// airdrops, and backup management.
type AdminHandler struct {
	configSvc  *economy.ConfigService
	airdropper *economy.Airdropper
	backups    *store.BackupStore
	backupMgr  *backup.Manager
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewAdminHandler(configSvc *economy.ConfigService, airdropper *economy.Airdropper, backups *store.BackupStore, backupMgr *backup.Manager, hub *websocket.Hub, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{configSvc: configSvc, airdropper: airdropper, backups: backups, backupMgr: backupMgr, hub: hub, logger: logger}
}

type configChangeRequest struct {
	ActorID    int64  `json:"actor_id"`
	TargetKey  string `json:"target_key"`
	ConfigType string `json:"config_type"`
	Value      string `json:"value"`
	Reason     string `json:"reason"`
	Immediate  bool   `json:"immediate"`
}

// ScheduleChange records a reward or price change, immediate or deferred.
func (h *AdminHandler) ScheduleChange(w http.ResponseWriter, r *http.Request) {
	var req configChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID <= 0 {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}

	record, err := h.configSvc.ScheduleChange(r.Context(), req.ActorID, req.TargetKey, model.ConfigType(req.ConfigType), value, req.Reason, req.Immediate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

type setActiveRequest struct {
	ActorID    int64  `json:"actor_id"`
	TargetKey  string `json:"target_key"`
	ConfigType string `json:"config_type"`
	Active     bool   `json:"active"`
	Reason     string `json:"reason"`
}

// SetActive toggles a task or scenario on or off.
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID <= 0 {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	record, err := h.configSvc.SetActive(r.Context(), req.ActorID, req.TargetKey, model.ConfigType(req.ConfigType), req.Active, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *AdminHandler) ListConfigChanges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	changes, err := h.configSvc.ListRecentChanges(limit)
	if err != nil {
		h.logger.Error("list config changes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}
	if changes == nil {
		changes = []model.EconomicConfig{}
	}
	writeJSON(w, http.StatusOK, changes)
}

type airdropRequest struct {
	ActorID        int64   `json:"actor_id"`
	TargetKind     string  `json:"target_kind"`
	TargetIDs      []int64 `json:"target_ids"`
	TargetGroup    string  `json:"target_group"`
	Amount         string  `json:"amount"`
	Reason         string  `json:"reason"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// Airdrop credits points to the selected audience in one atomic batch.
func (h *AdminHandler) Airdrop(w http.ResponseWriter, r *http.Request) {
	var req airdropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID <= 0 {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	var sel notice.TargetSelector
	switch notice.TargetKind(req.TargetKind) {
	case notice.TargetAll:
		sel = notice.SelectAll()
	case notice.TargetIDs:
		sel = notice.SelectIDs(req.TargetIDs...)
	case notice.TargetGroup:
		sel = notice.SelectGroup(req.TargetGroup)
	default:
		writeError(w, http.StatusBadRequest, "target_kind must be \"all\", \"ids\", or \"group\"")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	entries, err := h.airdropper.Airdrop(r.Context(), req.ActorID, sel, amount, req.Reason, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, notice.ErrInvalidTarget) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	if h.hub != nil {
		for i := range entries {
			websocket.BroadcastLedgerEntry(h.hub, &entries[i])
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"accounts_credited": len(entries)})
}

// --- Backup endpoints ---

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backupMgr.Status())
}

func (h *AdminHandler) BackupNow(w http.ResponseWriter, r *http.Request) {
	id, err := h.backupMgr.RunNow(r.Context())
	if err != nil {
		h.logger.Error("backup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"backup_id": id})
}

func (h *AdminHandler) BackupHistory(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *AdminHandler) BackupDownload(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	body, size, err := h.backupMgr.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("backup download failed", "error", err)
		writeError(w, http.StatusInternalServerError, "download failed")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	io.Copy(w, body)
}
