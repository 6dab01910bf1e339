package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/canvashq/canvas/internal/economy"
	"github.com/canvashq/canvas/internal/governance"
	"github.com/canvashq/canvas/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func strconv64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// writeDomainError maps engine and store sentinels to HTTP status codes.
// Anything unrecognized is a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, economy.ErrTaskNotFound),
		errors.Is(err, economy.ErrScenarioNotFound),
		errors.Is(err, governance.ErrProposalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, governance.ErrAlreadyVoted),
		errors.Is(err, economy.ErrTaskLimitReached),
		errors.Is(err, economy.ErrDailyLimitReached),
		errors.Is(err, governance.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, economy.ErrRequirementNotMet),
		errors.Is(err, governance.ErrNotEligible),
		errors.Is(err, governance.ErrVotingClosed):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, economy.ErrTaskInactive),
		errors.Is(err, economy.ErrScenarioInactive),
		errors.Is(err, economy.ErrReasonTooShort),
		errors.Is(err, economy.ErrInvalidConfigValue),
		errors.Is(err, economy.ErrUnknownConfigType),
		errors.Is(err, governance.ErrInvalidVoteStrength):
		status = http.StatusBadRequest
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
