package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalDraft     ProposalStatus = "draft"
	ProposalActive    ProposalStatus = "active"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalFinalized ProposalStatus = "finalized"
)

type VotePosition string

const (
	VoteFor     VotePosition = "for"
	VoteAgainst VotePosition = "against"
)

type Proposal struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Status          ProposalStatus  `json:"status"`
	CreatorID       int64           `json:"creator_id"`
	VotingStartAt   time.Time       `json:"voting_start_at"`
	VotingEndAt     time.Time       `json:"voting_end_at"`
	MinPointsToVote decimal.Decimal `json:"min_points_to_vote"`
	SupportWeight   int64           `json:"support_weight"`
	OpposeWeight    int64           `json:"oppose_weight"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ProposalVote records one account's vote. PointsCost is persisted for audit
// even though it is derivable from the strength.
type ProposalVote struct {
	ID            int64           `json:"id"`
	ProposalID    int64           `json:"proposal_id"`
	AccountID     int64           `json:"account_id"`
	Position      VotePosition    `json:"position"`
	Strength      int             `json:"vote_strength"`
	PointsCost    decimal.Decimal `json:"points_cost"`
	Justification string          `json:"justification,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ProposalTally is the aggregate weighted result for a proposal.
type ProposalTally struct {
	ProposalID    int64 `json:"proposal_id"`
	SupportWeight int64 `json:"support_weight"`
	OpposeWeight  int64 `json:"oppose_weight"`
	VoteCount     int   `json:"vote_count"`
}
