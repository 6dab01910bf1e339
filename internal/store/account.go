package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountCols = `id, name, group_name, points_balance, total_points_earned, total_points_spent, approved_artwork_count, created_at`

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var balance, earned, spent string

	err := scanner.Scan(&a.ID, &a.Name, &a.GroupName, &balance, &earned, &spent, &a.ArtworkCount, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if a.TotalEarned, err = decimal.NewFromString(earned); err != nil {
		return nil, fmt.Errorf("parse total earned: %w", err)
	}
	if a.TotalSpent, err = decimal.NewFromString(spent); err != nil {
		return nil, fmt.Errorf("parse total spent: %w", err)
	}
	return &a, nil
}

func (s *AccountStore) Create(name, groupName string) (*model.Account, error) {
	result, err := s.db.Exec(
		`INSERT INTO accounts (name, group_name) VALUES (?, ?)`,
		name, groupName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AccountStore) GetByID(id int64) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByIDTx(tx *sql.Tx, id int64) (*model.Account, error) {
	row := tx.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) List() ([]model.Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// ListIDs returns all account IDs, used by the airdrop target resolver.
func (s *AccountStore) ListIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM accounts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list account ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListIDsByGroup returns account IDs for a named group.
func (s *AccountStore) ListIDsByGroup(group string) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM accounts WHERE group_name = ? ORDER BY id ASC`, group)
	if err != nil {
		return nil, fmt.Errorf("list account ids by group: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetArtworkCount updates the approved artwork counter used by scenario
// requirements.
func (s *AccountStore) SetArtworkCount(id int64, count int) error {
	_, err := s.db.Exec(`UPDATE accounts SET approved_artwork_count = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set artwork count: %w", err)
	}
	return nil
}
