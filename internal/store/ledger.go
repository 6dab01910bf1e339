package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

var (
	// ErrInvalidAmount is returned for a zero magnitude or a sign that does
	// not match the transaction type convention.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when a debit would drive the balance
	// negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound is returned when the target account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// AppendParams describes one ledger entry to append. Amount is signed:
// rewards and airdrops positive, consumption and vote costs negative.
type AppendParams struct {
	AccountID      int64
	Amount         decimal.Decimal
	Type           model.TransactionType
	Description    string
	RelatedEntity  string
	IdempotencyKey string
}

// LedgerStore owns the append-only point_transactions table and the derived
// balance columns on accounts. Both are always written in one transaction.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const txnCols = `id, account_id, amount, type, description, related_entity, idempotency_key, created_at`

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.PointTransaction, error) {
	var t model.PointTransaction
	var amount string
	var idemKey sql.NullString

	err := scanner.Scan(&t.ID, &t.AccountID, &amount, &t.Type, &t.Description, &t.RelatedEntity, &idemKey, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if idemKey.Valid {
		t.IdempotencyKey = idemKey.String
	}
	return &t, nil
}

// Append records one point movement atomically with the balance update.
func (s *LedgerStore) Append(ctx context.Context, p AppendParams) (*model.PointTransaction, error) {
	var entry *model.PointTransaction
	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		entry, err = s.AppendTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendTx is Append inside a caller-owned transaction, used by the task,
// consumption, and voting engines to make their own writes atomic with the
// ledger entry.
func (s *LedgerStore) AppendTx(tx *sql.Tx, p AppendParams) (*model.PointTransaction, error) {
	if p.Amount.IsZero() {
		return nil, fmt.Errorf("%w: zero amount", ErrInvalidAmount)
	}
	if p.Type.IsCredit() != p.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: sign does not match type %s", ErrInvalidAmount, p.Type)
	}

	// Replayed request: return the original entry instead of double-applying.
	if p.IdempotencyKey != "" {
		existing, err := findByIdempotencyKeyTx(tx, p.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	var balance, earned, spent string
	err := tx.QueryRow(
		`SELECT points_balance, total_points_earned, total_points_spent FROM accounts WHERE id = ?`,
		p.AccountID,
	).Scan(&balance, &earned, &spent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, p.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}

	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	earnedTotal, err := decimal.NewFromString(earned)
	if err != nil {
		return nil, fmt.Errorf("parse total earned: %w", err)
	}
	spentTotal, err := decimal.NewFromString(spent)
	if err != nil {
		return nil, fmt.Errorf("parse total spent: %w", err)
	}

	newBalance := bal.Add(p.Amount)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s, debit %s", ErrInsufficientFunds, bal, p.Amount.Abs())
	}
	if p.Amount.IsPositive() {
		earnedTotal = earnedTotal.Add(p.Amount)
	} else {
		spentTotal = spentTotal.Add(p.Amount.Abs())
	}

	var idemKey sql.NullString
	if p.IdempotencyKey != "" {
		idemKey = sql.NullString{String: p.IdempotencyKey, Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO point_transactions (account_id, amount, type, description, related_entity, idempotency_key) VALUES (?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.Amount.String(), string(p.Type), p.Description, p.RelatedEntity, idemKey,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent replay of the same key.
			existing, ferr := findByIdempotencyKeyTx(tx, p.IdempotencyKey)
			if ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE accounts SET points_balance = ?, total_points_earned = ?, total_points_spent = ? WHERE id = ?`,
		newBalance.String(), earnedTotal.String(), spentTotal.String(), p.AccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	row := tx.QueryRow(`SELECT `+txnCols+` FROM point_transactions WHERE id = ?`, id)
	entry, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("read back transaction: %w", err)
	}
	return entry, nil
}

func findByIdempotencyKeyTx(tx *sql.Tx, key string) (*model.PointTransaction, error) {
	row := tx.QueryRow(`SELECT `+txnCols+` FROM point_transactions WHERE idempotency_key = ?`, key)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by idempotency key: %w", err)
	}
	return t, nil
}

// HistoryFilter selects ledger entries for the history and transparency
// feeds. BeforeID pages backwards through the feed; zero starts from the
// newest entry.
type HistoryFilter struct {
	AccountID *int64
	Type      *model.TransactionType
	BeforeID  int64
	Limit     int
}

// History returns entries in reverse-chronological order using keyset paging.
func (s *LedgerStore) History(f HistoryFilter) ([]model.PointTransaction, error) {
	query := `SELECT ` + txnCols + ` FROM point_transactions WHERE 1=1`
	var args []any

	if f.AccountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *f.AccountID)
	}
	if f.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*f.Type))
	}
	if f.BeforeID > 0 {
		query += ` AND id < ?`
		args = append(args, f.BeforeID)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []model.PointTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, *t)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) GetByID(id int64) (*model.PointTransaction, error) {
	row := s.db.QueryRow(`SELECT `+txnCols+` FROM point_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}
