package economy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
)

// Airdropper credits points to a selected audience in a single atomic batch.
type Airdropper struct {
	db        *sql.DB
	accounts  *store.AccountStore
	ledger    *store.LedgerStore
	publisher notice.Publisher
	logger    *slog.Logger
}

func NewAirdropper(db *sql.DB, accounts *store.AccountStore, ledger *store.LedgerStore, publisher notice.Publisher, logger *slog.Logger) *Airdropper {
	return &Airdropper{db: db, accounts: accounts, ledger: ledger, publisher: publisher, logger: logger}
}

// Airdrop credits amount to every account the selector resolves to. All
// credits commit or roll back together. When idempotencyKey is set each
// account's entry gets a derived key, so a retried airdrop never
// double-credits. Returns the ledger entries written, one per account.
func (a *Airdropper) Airdrop(ctx context.Context, actorID int64, sel notice.TargetSelector, amount decimal.Decimal, reason, idempotencyKey string) ([]model.PointTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: airdrop amount must be positive", store.ErrInvalidAmount)
	}

	ids, err := notice.Resolve(sel, a.accounts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entries := make([]model.PointTransaction, 0, len(ids))
	err = store.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		entries = entries[:0]
		for _, accountID := range ids {
			key := ""
			if idempotencyKey != "" {
				key = fmt.Sprintf("%s:%d", idempotencyKey, accountID)
			}
			entry, err := a.ledger.AppendTx(tx, store.AppendParams{
				AccountID:      accountID,
				Amount:         amount,
				Type:           model.TxAdminAirdrop,
				Description:    reason,
				RelatedEntity:  fmt.Sprintf("airdrop:%d", actorID),
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			entries = append(entries, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range ids {
		metrics.LedgerEntries.WithLabelValues(string(model.TxAdminAirdrop)).Inc()
	}
	a.logger.Info("airdrop applied",
		"actor_id", actorID,
		"accounts", len(ids),
		"amount", amount,
	)

	a.publisher.Publish(notice.New(
		"Points airdrop",
		fmt.Sprintf("%s points credited to %d accounts", amount, len(ids)),
		reason,
		actorID,
		time.Now().UTC(),
	))
	metrics.NoticesPublished.Inc()

	return entries, nil
}
