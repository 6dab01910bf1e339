package governance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
)

// Config holds the voting cost parameters.
type Config struct {
	// BaseCost is the price of a strength-1 vote.
	BaseCost decimal.Decimal
	// MaxStrength caps the quadratic exponent base. Strength must be
	// strictly below it.
	MaxStrength int
}

func DefaultConfig() Config {
	return Config{
		BaseCost:    decimal.NewFromInt(1),
		MaxStrength: 1000,
	}
}

// VoteCost returns the quadratic cost of a vote: baseCost * strength².
// Strength validation is the caller's job.
func VoteCost(baseCost decimal.Decimal, strength int) decimal.Decimal {
	sq := int64(strength) * int64(strength)
	return baseCost.Mul(decimal.NewFromInt(sq))
}

// VotingEngine casts quadratically-priced votes and manages the proposal
// lifecycle.
type VotingEngine struct {
	db        *sql.DB
	proposals *store.ProposalStore
	accounts  *store.AccountStore
	ledger    *store.LedgerStore
	cfg       Config
	logger    *slog.Logger
}

func NewVotingEngine(db *sql.DB, proposals *store.ProposalStore, accounts *store.AccountStore, ledger *store.LedgerStore, cfg Config, logger *slog.Logger) *VotingEngine {
	if cfg.MaxStrength <= 0 {
		cfg.MaxStrength = DefaultConfig().MaxStrength
	}
	if cfg.BaseCost.IsZero() {
		cfg.BaseCost = DefaultConfig().BaseCost
	}
	return &VotingEngine{db: db, proposals: proposals, accounts: accounts, ledger: ledger, cfg: cfg, logger: logger}
}

// CastVote debits the quadratic cost and records the vote. The debit, the
// vote row, and the weighted tally update commit or roll back together. One
// vote per account per proposal is guaranteed by the unique index on the
// votes table, so two concurrent casts cannot both land.
func (e *VotingEngine) CastVote(ctx context.Context, accountID, proposalID int64, position model.VotePosition, strength int, justification string, now time.Time) (*model.ProposalVote, error) {
	if position != model.VoteFor && position != model.VoteAgainst {
		return nil, fmt.Errorf("unknown vote position %q", position)
	}
	if strength <= 0 || strength >= e.cfg.MaxStrength {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidVoteStrength, strength, e.cfg.MaxStrength-1)
	}

	cost := VoteCost(e.cfg.BaseCost, strength)

	var vote *model.ProposalVote
	err := store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		proposal, err := e.proposals.GetByIDTx(tx, proposalID)
		if err != nil {
			return err
		}
		if proposal == nil {
			return fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
		}
		if err := votable(proposal, now); err != nil {
			return err
		}

		account, err := e.accounts.GetByIDTx(tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: id %d", store.ErrAccountNotFound, accountID)
		}
		if account.Balance.LessThan(proposal.MinPointsToVote) {
			return fmt.Errorf("%w: balance %s below threshold %s", ErrNotEligible, account.Balance, proposal.MinPointsToVote)
		}

		vote, err = e.proposals.InsertVoteTx(tx, model.ProposalVote{
			ProposalID:    proposalID,
			AccountID:     accountID,
			Position:      position,
			Strength:      strength,
			PointsCost:    cost,
			Justification: justification,
		})
		if errors.Is(err, store.ErrDuplicateVote) {
			return fmt.Errorf("%w: proposal %d", ErrAlreadyVoted, proposalID)
		}
		if err != nil {
			return err
		}

		_, err = e.ledger.AppendTx(tx, store.AppendParams{
			AccountID:     accountID,
			Amount:        cost.Neg(),
			Type:          model.TxGovernanceVote,
			Description:   fmt.Sprintf("Vote on proposal: %s", proposal.Title),
			RelatedEntity: fmt.Sprintf("proposal:%d", proposalID),
		})
		if err != nil {
			return err
		}

		return e.proposals.AddTallyTx(tx, proposalID, position, int64(strength))
	})
	if err != nil {
		return nil, err
	}

	metrics.VotesCast.WithLabelValues(string(position)).Inc()
	metrics.LedgerEntries.WithLabelValues(string(model.TxGovernanceVote)).Inc()
	e.logger.Info("vote cast",
		"account_id", accountID,
		"proposal_id", proposalID,
		"position", position,
		"strength", strength,
		"cost", cost,
	)
	return vote, nil
}

// CheckVotingPermission reports whether the account could currently vote on
// the proposal, without casting. A nil error means eligible; otherwise the
// same sentinel CastVote would return.
func (e *VotingEngine) CheckVotingPermission(accountID, proposalID int64, now time.Time) error {
	proposal, err := e.proposals.GetByID(proposalID)
	if err != nil {
		return err
	}
	if proposal == nil {
		return fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}
	if err := votable(proposal, now); err != nil {
		return err
	}

	account, err := e.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: id %d", store.ErrAccountNotFound, accountID)
	}
	if account.Balance.LessThan(proposal.MinPointsToVote) {
		return fmt.Errorf("%w: balance %s below threshold %s", ErrNotEligible, account.Balance, proposal.MinPointsToVote)
	}

	existing, err := e.proposals.GetVote(proposalID, accountID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: proposal %d", ErrAlreadyVoted, proposalID)
	}
	return nil
}

// Tally returns the aggregate weighted result.
func (e *VotingEngine) Tally(proposalID int64) (*model.ProposalTally, error) {
	tally, err := e.proposals.Tally(proposalID)
	if err != nil {
		return nil, err
	}
	if tally == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}
	return tally, nil
}

func votable(p *model.Proposal, now time.Time) error {
	if p.Status != model.ProposalActive {
		return fmt.Errorf("%w: proposal is %s", ErrVotingClosed, p.Status)
	}
	now = now.UTC()
	if now.Before(p.VotingStartAt) || now.After(p.VotingEndAt) {
		return fmt.Errorf("%w: outside voting window", ErrVotingClosed)
	}
	return nil
}
