package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
)

type AccountHandler struct {
	accounts *store.AccountStore
	ledger   *store.LedgerStore
	logger   *slog.Logger
}

func NewAccountHandler(accounts *store.AccountStore, ledger *store.LedgerStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger, logger: logger}
}

type accountRequest struct {
	DisplayName string `json:"display_name"`
	GroupName   string `json:"group_name"`
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	account, err := h.accounts.Create(req.DisplayName, req.GroupName)
	if err != nil {
		h.logger.Error("create account failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	account, err := h.accounts.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// History returns the account's ledger entries, newest first, with keyset
// paging via ?before_id= and ?limit=.
func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	filter, ok := historyFilterFromQuery(w, r)
	if !ok {
		return
	}
	filter.AccountID = &id

	entries, err := h.ledger.History(filter)
	if err != nil {
		h.logger.Error("ledger history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []model.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Feed returns the global reverse-chronological ledger, the transparency
// feed every visitor can read.
func (h *AccountHandler) Feed(w http.ResponseWriter, r *http.Request) {
	filter, ok := historyFilterFromQuery(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.History(filter)
	if err != nil {
		h.logger.Error("ledger feed failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	if entries == nil {
		entries = []model.PointTransaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func historyFilterFromQuery(w http.ResponseWriter, r *http.Request) (store.HistoryFilter, bool) {
	var filter store.HistoryFilter

	if v := r.URL.Query().Get("before_id"); v != "" {
		beforeID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before_id")
			return filter, false
		}
		filter.BeforeID = beforeID
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return filter, false
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := model.TransactionType(v)
		filter.Type = &t
	}
	return filter, true
}
