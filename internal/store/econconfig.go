package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

// EconConfigStore owns the append-only economic_configs audit trail. Records
// are never updated after creation except for the single applied_at stamp.
type EconConfigStore struct {
	db *sql.DB
}

func NewEconConfigStore(db *sql.DB) *EconConfigStore {
	return &EconConfigStore{db: db}
}

const econConfigCols = `id, config_key, config_type, target_key, config_value, change_reason, updated_by, effective_at, applied_at, created_at`

func scanEconConfig(scanner interface{ Scan(...any) error }) (*model.EconomicConfig, error) {
	var c model.EconomicConfig
	var value string
	var appliedAt sql.NullTime

	err := scanner.Scan(&c.ID, &c.ConfigKey, &c.ConfigType, &c.TargetKey, &value,
		&c.ChangeReason, &c.UpdatedBy, &c.EffectiveAt, &appliedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if c.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("parse config value: %w", err)
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		c.AppliedAt = &t
	}
	return &c, nil
}

// InsertTx appends an audit record. appliedAt is non-nil for immediate
// changes applied in the same transaction.
func (s *EconConfigStore) InsertTx(tx *sql.Tx, c model.EconomicConfig, appliedAt *time.Time) (*model.EconomicConfig, error) {
	var applied any
	if appliedAt != nil {
		applied = appliedAt.UTC()
	}
	result, err := tx.Exec(
		`INSERT INTO economic_configs (config_key, config_type, target_key, config_value, change_reason, updated_by, effective_at, applied_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ConfigKey, string(c.ConfigType), c.TargetKey, c.Value.String(), c.ChangeReason, c.UpdatedBy, c.EffectiveAt.UTC(), applied,
	)
	if err != nil {
		return nil, fmt.Errorf("insert economic config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+econConfigCols+` FROM economic_configs WHERE id = ?`, id)
	created, err := scanEconConfig(row)
	if err != nil {
		return nil, fmt.Errorf("read back economic config: %w", err)
	}
	return created, nil
}

func (s *EconConfigStore) GetByID(id int64) (*model.EconomicConfig, error) {
	row := s.db.QueryRow(`SELECT `+econConfigCols+` FROM economic_configs WHERE id = ?`, id)
	c, err := scanEconConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get economic config: %w", err)
	}
	return c, nil
}

// ListPendingDue returns unapplied deferred changes whose effective time has
// elapsed, oldest first so later records supersede earlier ones when both
// target the same key.
func (s *EconConfigStore) ListPendingDue(now time.Time) ([]model.EconomicConfig, error) {
	rows, err := s.db.Query(
		`SELECT `+econConfigCols+` FROM economic_configs WHERE applied_at IS NULL AND effective_at <= ? ORDER BY id ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending configs: %w", err)
	}
	defer rows.Close()

	var configs []model.EconomicConfig
	for rows.Next() {
		c, err := scanEconConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan economic config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// MarkAppliedTx stamps applied_at exactly once. The applied_at IS NULL guard
// makes concurrent sweeps apply each record at most once: only the sweep
// that wins the conditional update proceeds to touch the live value.
func (s *EconConfigStore) MarkAppliedTx(tx *sql.Tx, id int64, now time.Time) (bool, error) {
	res, err := tx.Exec(
		`UPDATE economic_configs SET applied_at = ? WHERE id = ? AND applied_at IS NULL`,
		now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark applied: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListRecent returns the newest audit records for admin screens.
func (s *EconConfigStore) ListRecent(limit int) ([]model.EconomicConfig, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+econConfigCols+` FROM economic_configs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent configs: %w", err)
	}
	defer rows.Close()

	var configs []model.EconomicConfig
	for rows.Next() {
		c, err := scanEconConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan economic config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}
