package governance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
)

// ProposalAdmin moves proposals through their lifecycle. Legal transitions:
// draft -> active, draft -> rejected, active -> finalized. Every transition
// is announced on the notice feed.
type ProposalAdmin struct {
	proposals *store.ProposalStore
	publisher notice.Publisher
	logger    *slog.Logger
}

func NewProposalAdmin(proposals *store.ProposalStore, publisher notice.Publisher, logger *slog.Logger) *ProposalAdmin {
	return &ProposalAdmin{proposals: proposals, publisher: publisher, logger: logger}
}

// Activate opens a draft proposal for voting.
func (a *ProposalAdmin) Activate(proposalID, actorID int64, reason string) (*model.Proposal, error) {
	return a.transition(proposalID, actorID, reason, model.ProposalDraft, model.ProposalActive, "Voting opened")
}

// Reject discards a draft proposal before voting opens.
func (a *ProposalAdmin) Reject(proposalID, actorID int64, reason string) (*model.Proposal, error) {
	return a.transition(proposalID, actorID, reason, model.ProposalDraft, model.ProposalRejected, "Proposal rejected")
}

// Finalize closes voting and freezes the tally.
func (a *ProposalAdmin) Finalize(proposalID, actorID int64, reason string) (*model.Proposal, error) {
	return a.transition(proposalID, actorID, reason, model.ProposalActive, model.ProposalFinalized, "Voting closed")
}

func (a *ProposalAdmin) transition(proposalID, actorID int64, reason string, from, to model.ProposalStatus, headline string) (*model.Proposal, error) {
	proposal, err := a.proposals.GetByID(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}
	if proposal.Status != from {
		return nil, fmt.Errorf("%w: %s -> %s (proposal is %s)", ErrInvalidTransition, from, to, proposal.Status)
	}

	if err := a.proposals.SetStatus(proposalID, to); err != nil {
		return nil, err
	}

	a.logger.Info("proposal transitioned",
		"proposal_id", proposalID,
		"from", from,
		"to", to,
		"actor_id", actorID,
	)
	a.publisher.Publish(notice.New(
		fmt.Sprintf("%s: %s", headline, proposal.Title),
		fmt.Sprintf("Proposal %d moved from %s to %s", proposalID, from, to),
		reason,
		actorID,
		time.Now().UTC(),
	))
	metrics.NoticesPublished.Inc()

	return a.proposals.GetByID(proposalID)
}
