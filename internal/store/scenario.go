package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

type ScenarioStore struct {
	db *sql.DB
}

func NewScenarioStore(db *sql.DB) *ScenarioStore {
	return &ScenarioStore{db: db}
}

const scenarioCols = `id, key, name, category, price, daily_limit, active, requirements, effects, created_at, updated_at`

func scanScenario(scanner interface{ Scan(...any) error }) (*model.ConsumptionScenario, error) {
	var sc model.ConsumptionScenario
	var price, requirements, effects string
	var dailyLimit sql.NullInt64
	var active int

	err := scanner.Scan(&sc.ID, &sc.Key, &sc.Name, &sc.Category, &price, &dailyLimit, &active, &requirements, &effects, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if sc.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	if dailyLimit.Valid {
		v := int(dailyLimit.Int64)
		sc.DailyLimit = &v
	}
	sc.Active = active != 0
	if err := json.Unmarshal([]byte(requirements), &sc.Requires); err != nil {
		return nil, fmt.Errorf("parse requirements: %w", err)
	}
	if err := json.Unmarshal([]byte(effects), &sc.Effects); err != nil {
		return nil, fmt.Errorf("parse effects: %w", err)
	}
	return &sc, nil
}

func (s *ScenarioStore) GetByKey(key string) (*model.ConsumptionScenario, error) {
	row := s.db.QueryRow(`SELECT `+scenarioCols+` FROM consumption_scenarios WHERE key = ?`, key)
	sc, err := scanScenario(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

func (s *ScenarioStore) GetByKeyTx(tx *sql.Tx, key string) (*model.ConsumptionScenario, error) {
	row := tx.QueryRow(`SELECT `+scenarioCols+` FROM consumption_scenarios WHERE key = ?`, key)
	sc, err := scanScenario(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

func (s *ScenarioStore) List() ([]model.ConsumptionScenario, error) {
	rows, err := s.db.Query(`SELECT ` + scenarioCols + ` FROM consumption_scenarios ORDER BY category ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []model.ConsumptionScenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, *sc)
	}
	return scenarios, rows.Err()
}

func (s *ScenarioStore) Create(sc model.ConsumptionScenario) (*model.ConsumptionScenario, error) {
	requirements, err := json.Marshal(sc.Requires)
	if err != nil {
		return nil, fmt.Errorf("marshal requirements: %w", err)
	}
	effects, err := json.Marshal(sc.Effects)
	if err != nil {
		return nil, fmt.Errorf("marshal effects: %w", err)
	}
	var dailyLimit sql.NullInt64
	if sc.DailyLimit != nil {
		dailyLimit = sql.NullInt64{Int64: int64(*sc.DailyLimit), Valid: true}
	}
	var active int
	if sc.Active {
		active = 1
	}

	_, err = s.db.Exec(
		`INSERT INTO consumption_scenarios (key, name, category, price, daily_limit, active, requirements, effects) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.Key, sc.Name, sc.Category, sc.Price.String(), dailyLimit, active, string(requirements), string(effects),
	)
	if err != nil {
		return nil, fmt.Errorf("insert scenario: %w", err)
	}
	return s.GetByKey(sc.Key)
}

// SetPriceTx updates the live price, within the same transaction as the
// economic-config audit record for immediate changes.
func (s *ScenarioStore) SetPriceTx(tx *sql.Tx, key string, price decimal.Decimal) error {
	res, err := tx.Exec(
		`UPDATE consumption_scenarios SET price = ?, updated_at = datetime('now') WHERE key = ?`,
		price.String(), key,
	)
	if err != nil {
		return fmt.Errorf("set scenario price: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set scenario price: no scenario with key %q", key)
	}
	return nil
}

func (s *ScenarioStore) SetActiveTx(tx *sql.Tx, key string, active bool) error {
	var a int
	if active {
		a = 1
	}
	res, err := tx.Exec(
		`UPDATE consumption_scenarios SET active = ?, updated_at = datetime('now') WHERE key = ?`,
		a, key,
	)
	if err != nil {
		return fmt.Errorf("set scenario active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set scenario active: no scenario with key %q", key)
	}
	return nil
}

// --- Purchase methods ---

// CountPurchasesTx counts an account's purchases of a scenario within
// [start, end), used for daily limits.
func (s *ScenarioStore) CountPurchasesTx(tx *sql.Tx, scenarioID, accountID int64, start, end time.Time) (int, error) {
	var count int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM scenario_purchases WHERE scenario_id = ? AND account_id = ? AND purchased_at >= ? AND purchased_at < ?`,
		scenarioID, accountID, start.UTC(), end.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count purchases: %w", err)
	}
	return count, nil
}

func (s *ScenarioStore) CreatePurchaseTx(tx *sql.Tx, scenarioID, accountID int64, pricePaid decimal.Decimal, purchasedAt time.Time) (*model.ScenarioPurchase, error) {
	result, err := tx.Exec(
		`INSERT INTO scenario_purchases (scenario_id, account_id, price_paid, purchased_at) VALUES (?, ?, ?, ?)`,
		scenarioID, accountID, pricePaid.String(), purchasedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert purchase: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var p model.ScenarioPurchase
	var price string
	err = tx.QueryRow(
		`SELECT id, scenario_id, account_id, price_paid, purchased_at FROM scenario_purchases WHERE id = ?`, id,
	).Scan(&p.ID, &p.ScenarioID, &p.AccountID, &price, &p.PurchasedAt)
	if err != nil {
		return nil, fmt.Errorf("read back purchase: %w", err)
	}
	if p.PricePaid, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price paid: %w", err)
	}
	return &p, nil
}

// CreateEffectTx grants one effect instance from a purchase. expiresAt is nil
// for effects without a duration.
func (s *ScenarioStore) CreateEffectTx(tx *sql.Tx, accountID, purchaseID int64, key string, grantedAt time.Time, expiresAt *time.Time) error {
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC()
	}
	_, err := tx.Exec(
		`INSERT INTO account_effects (account_id, purchase_id, key, granted_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		accountID, purchaseID, key, grantedAt.UTC(), exp,
	)
	if err != nil {
		return fmt.Errorf("insert effect: %w", err)
	}
	return nil
}

// ListActiveEffects returns effects that have not expired as of now.
func (s *ScenarioStore) ListActiveEffects(accountID int64, now time.Time) ([]model.AccountEffect, error) {
	rows, err := s.db.Query(
		`SELECT id, account_id, purchase_id, key, granted_at, expires_at FROM account_effects
		 WHERE account_id = ? AND (expires_at IS NULL OR expires_at > ?) ORDER BY granted_at DESC`,
		accountID, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list effects: %w", err)
	}
	defer rows.Close()

	var effects []model.AccountEffect
	for rows.Next() {
		var e model.AccountEffect
		var expiresAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PurchaseID, &e.Key, &e.GrantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			e.ExpiresAt = &t
		}
		effects = append(effects, e)
	}
	return effects, rows.Err()
}
