package economy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/metrics"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/store"
)

// ConsumptionEngine debits points for scenario-gated actions and applies the
// granted effects.
type ConsumptionEngine struct {
	db        *sql.DB
	scenarios *store.ScenarioStore
	accounts  *store.AccountStore
	ledger    *store.LedgerStore
	logger    *slog.Logger
}

func NewConsumptionEngine(db *sql.DB, scenarios *store.ScenarioStore, accounts *store.AccountStore, ledger *store.LedgerStore, logger *slog.Logger) *ConsumptionEngine {
	return &ConsumptionEngine{db: db, scenarios: scenarios, accounts: accounts, ledger: ledger, logger: logger}
}

// Purchase debits the scenario price and grants its effects. The debit,
// purchase row, and effect grants commit or roll back together; a failed
// requirement or limit leaves the balance untouched. The ledger entry for
// the debit is returned alongside the purchase.
func (e *ConsumptionEngine) Purchase(ctx context.Context, accountID int64, scenarioKey, idempotencyKey string, now time.Time) (*model.ScenarioPurchase, *model.PointTransaction, error) {
	var purchase *model.ScenarioPurchase
	var entry *model.PointTransaction
	var scenario *model.ConsumptionScenario

	err := store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		scenario, err = e.scenarios.GetByKeyTx(tx, scenarioKey)
		if err != nil {
			return err
		}
		if scenario == nil {
			return fmt.Errorf("%w: %q", ErrScenarioNotFound, scenarioKey)
		}
		if !scenario.Active {
			return fmt.Errorf("%w: %q", ErrScenarioInactive, scenarioKey)
		}

		account, err := e.accounts.GetByIDTx(tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("%w: id %d", store.ErrAccountNotFound, accountID)
		}

		if err := evaluateRequirements(scenario.Requires, account, now); err != nil {
			return err
		}

		if scenario.DailyLimit != nil {
			dayStart, dayEnd := DayWindow(now)
			count, err := e.scenarios.CountPurchasesTx(tx, scenario.ID, accountID, dayStart, dayEnd)
			if err != nil {
				return err
			}
			if count >= *scenario.DailyLimit {
				return fmt.Errorf("%w: %q (%d/%d today)", ErrDailyLimitReached, scenarioKey, count, *scenario.DailyLimit)
			}
		}

		entry, err = e.ledger.AppendTx(tx, store.AppendParams{
			AccountID:      accountID,
			Amount:         scenario.Price.Neg(),
			Type:           model.TxConsumption,
			Description:    scenario.Name,
			RelatedEntity:  fmt.Sprintf("scenario:%s", scenario.Key),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		purchase, err = e.scenarios.CreatePurchaseTx(tx, scenario.ID, accountID, scenario.Price, now)
		if err != nil {
			return err
		}

		// Each purchase grants fresh, independently-expiring effect instances.
		for _, effect := range scenario.Effects {
			var expiresAt *time.Time
			if effect.DurationHours > 0 {
				t := now.UTC().Add(time.Duration(effect.DurationHours) * time.Hour)
				expiresAt = &t
			}
			if err := e.scenarios.CreateEffectTx(tx, accountID, purchase.ID, effect.Key, now, expiresAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.ScenarioPurchases.WithLabelValues(scenario.Key).Inc()
	metrics.LedgerEntries.WithLabelValues(string(model.TxConsumption)).Inc()
	e.logger.Info("scenario purchased",
		"account_id", accountID,
		"scenario", scenario.Key,
		"price", scenario.Price,
	)
	return purchase, entry, nil
}

// ActiveEffects returns the account's unexpired effect grants.
func (e *ConsumptionEngine) ActiveEffects(accountID int64, now time.Time) ([]model.AccountEffect, error) {
	return e.scenarios.ListActiveEffects(accountID, now)
}

func evaluateRequirements(reqs []model.Requirement, account *model.Account, now time.Time) error {
	for _, req := range reqs {
		switch req.Type {
		case model.ReqMinAccountAgeDays:
			days, err := strconv.Atoi(req.Value)
			if err != nil {
				return fmt.Errorf("%w: bad threshold %q", ErrRequirementNotMet, req.Value)
			}
			age := now.UTC().Sub(account.CreatedAt.UTC())
			if age < time.Duration(days)*24*time.Hour {
				return fmt.Errorf("%w: %s (need %d days)", ErrRequirementNotMet, req.Type, days)
			}
		case model.ReqMinApprovedArtworks:
			min, err := strconv.Atoi(req.Value)
			if err != nil {
				return fmt.Errorf("%w: bad threshold %q", ErrRequirementNotMet, req.Value)
			}
			if account.ArtworkCount < min {
				return fmt.Errorf("%w: %s (need %d)", ErrRequirementNotMet, req.Type, min)
			}
		case model.ReqMinBalance:
			min, err := decimal.NewFromString(req.Value)
			if err != nil {
				return fmt.Errorf("%w: bad threshold %q", ErrRequirementNotMet, req.Value)
			}
			if account.Balance.LessThan(min) {
				return fmt.Errorf("%w: %s (need %s)", ErrRequirementNotMet, req.Type, min)
			}
		default:
			return fmt.Errorf("%w: unknown predicate %q", ErrRequirementNotMet, req.Type)
		}
	}
	return nil
}
