package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/governance"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
	"github.com/canvashq/canvas/internal/websocket"
)

// proposalScenarioKey is the consumption scenario debited when an account
// opens a proposal.
const proposalScenarioKey = "create_proposal"

type ProposalHandler struct {
	proposals   *store.ProposalStore
	consumption *economy.ConsumptionEngine
	voting      *governance.VotingEngine
	admin       *governance.ProposalAdmin
	ledger      *store.LedgerStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewProposalHandler(proposals *store.ProposalStore, consumption *economy.ConsumptionEngine, voting *governance.VotingEngine, admin *governance.ProposalAdmin, ledger *store.LedgerStore, hub *websocket.Hub, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, consumption: consumption, voting: voting, admin: admin, ledger: ledger, hub: hub, logger: logger}
}

func (h *ProposalHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type proposalRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CreatorID       int64     `json:"creator_id"`
	VotingStartAt   time.Time `json:"voting_start_at"`
	VotingEndAt     time.Time `json:"voting_end_at"`
	MinPointsToVote string    `json:"min_points_to_vote"`
	IdempotencyKey  string    `json:"idempotency_key"`
}

// Create charges the proposal-creation scenario and opens a draft proposal.
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.CreatorID <= 0 {
		writeError(w, http.StatusBadRequest, "creator_id is required")
		return
	}
	if !req.VotingEndAt.After(req.VotingStartAt) {
		writeError(w, http.StatusBadRequest, "voting_end_at must be after voting_start_at")
		return
	}

	minPoints := decimal.Zero
	if req.MinPointsToVote != "" {
		var err error
		minPoints, err = decimal.NewFromString(req.MinPointsToVote)
		if err != nil || minPoints.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid min_points_to_vote")
			return
		}
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	// The creation fee is charged first; if the insert then fails the fee
	// is credited back so the ledger self-heals.
	_, feeEntry, err := h.consumption.Purchase(r.Context(), req.CreatorID, proposalScenarioKey, req.IdempotencyKey, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	proposal, err := h.proposals.Create(req.Title, req.Description, req.CreatorID, req.VotingStartAt, req.VotingEndAt, minPoints)
	if err != nil {
		h.logger.Error("create proposal failed", "error", err)
		h.refundCreationFee(r.Context(), req.CreatorID, feeEntry, req.IdempotencyKey)
		writeError(w, http.StatusInternalServerError, "failed to create proposal")
		return
	}

	h.broadcast(websocket.NewMessage("proposal", "created", proposal.ID, nil))
	if feeEntry != nil && h.hub != nil {
		websocket.BroadcastLedgerEntry(h.hub, feeEntry)
	}

	writeJSON(w, http.StatusCreated, proposal)
}

// refundCreationFee credits the fee back when the proposal insert fails
// after a successful charge. The derived idempotency key makes a repeated
// failure path credit at most once.
func (h *ProposalHandler) refundCreationFee(ctx context.Context, accountID int64, feeEntry *model.PointTransaction, idempotencyKey string) {
	if feeEntry == nil {
		return
	}
	_, err := h.ledger.Append(ctx, store.AppendParams{
		AccountID:      accountID,
		Amount:         feeEntry.Amount.Neg(),
		Type:           model.TxRefund,
		Description:    "Proposal creation fee refund",
		RelatedEntity:  feeEntry.RelatedEntity,
		IdempotencyKey: idempotencyKey + ":refund",
	})
	if err != nil {
		h.logger.Error("refund creation fee failed", "error", err, "account_id", accountID)
	}
}

func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *model.ProposalStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := model.ProposalStatus(v)
		status = &s
	}

	proposals, err := h.proposals.List(status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	if proposals == nil {
		proposals = []model.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposals)
}

func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	proposal, err := h.proposals.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get proposal")
		return
	}
	if proposal == nil {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}

	writeJSON(w, http.StatusOK, proposal)
}

type voteRequest struct {
	AccountID     int64  `json:"account_id"`
	Position      string `json:"position"`
	Strength      int    `json:"strength"`
	Justification string `json:"justification"`
}

// Vote casts a quadratically-priced vote.
func (h *ProposalHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	position := model.VotePosition(req.Position)
	if position != model.VoteFor && position != model.VoteAgainst {
		writeError(w, http.StatusBadRequest, "position must be \"for\" or \"against\"")
		return
	}

	vote, err := h.voting.CastVote(r.Context(), req.AccountID, id, position, req.Strength, req.Justification, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("proposal", "voted", id, map[string]any{
		"position": position,
		"strength": req.Strength,
	}))

	writeJSON(w, http.StatusCreated, vote)
}

func (h *ProposalHandler) Tally(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	tally, err := h.voting.Tally(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tally)
}

// CheckPermission reports whether the account could vote right now, without
// casting.
func (h *ProposalHandler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	accountID, err := strconv64(r.URL.Query().Get("account_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	if err := h.voting.CheckVotingPermission(accountID, id, time.Now().UTC()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"eligible": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eligible": true})
}

type transitionRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (h *ProposalHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.Activate, "activated")
}

func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.Reject, "rejected")
}

func (h *ProposalHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.admin.Finalize, "finalized")
}

func (h *ProposalHandler) transition(w http.ResponseWriter, r *http.Request, fn func(int64, int64, string) (*model.Proposal, error), action string) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID <= 0 {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	proposal, err := fn(id, req.ActorID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("proposal", action, id, nil))

	writeJSON(w, http.StatusOK, proposal)
}
