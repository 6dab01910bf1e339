package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the business reason for a point movement.
type TransactionType string

const (
	TxTaskReward     TransactionType = "task_reward"
	TxConsumption    TransactionType = "consumption"
	TxAdminAirdrop   TransactionType = "admin_airdrop"
	TxGovernanceVote TransactionType = "governance_vote"
	TxRefund         TransactionType = "refund"
)

// IsCredit reports whether entries of this type add points to an account.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxTaskReward, TxAdminAirdrop, TxRefund:
		return true
	default:
		return false
	}
}

type Account struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	GroupName    string          `json:"group_name"`
	Balance      decimal.Decimal `json:"points_balance"`
	TotalEarned  decimal.Decimal `json:"total_points_earned"`
	TotalSpent   decimal.Decimal `json:"total_points_spent"`
	ArtworkCount int             `json:"approved_artwork_count"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PointTransaction is an immutable ledger entry. The ledger is the source of
// truth for balances; Account totals are derived caches updated in the same
// transaction as the entry insert.
type PointTransaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	Description    string          `json:"description"`
	RelatedEntity  string          `json:"related_entity,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
