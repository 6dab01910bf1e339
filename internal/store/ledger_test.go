package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/database"
	"github.com/canvashq/canvas/internal/model"
)

func setupLedgerTestDB(t *testing.T) (*LedgerStore, *AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewLedgerStore(db), NewAccountStore(db)
}

func mustAccount(t *testing.T, as *AccountStore, name string) *model.Account {
	t.Helper()
	account, err := as.Create(name, "")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestAppendCreditUpdatesBalance(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")

	entry, err := ls.Append(context.Background(), AppendParams{
		AccountID:   account.ID,
		Amount:      dec(t, "5"),
		Type:        model.TxTaskReward,
		Description: "Upload your first artwork",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !entry.Amount.Equal(dec(t, "5")) {
		t.Errorf("amount = %s, want 5", entry.Amount)
	}

	got, err := as.GetByID(account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.Balance.Equal(dec(t, "5")) {
		t.Errorf("balance = %s, want 5", got.Balance)
	}
	if !got.TotalEarned.Equal(dec(t, "5")) {
		t.Errorf("total earned = %s, want 5", got.TotalEarned)
	}
	if !got.TotalSpent.IsZero() {
		t.Errorf("total spent = %s, want 0", got.TotalSpent)
	}
}

func TestAppendDebitUpdatesTotals(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")
	ctx := context.Background()

	if _, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "10"), Type: model.TxTaskReward,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "-3.5"), Type: model.TxConsumption,
	}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	got, err := as.GetByID(account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.Balance.Equal(dec(t, "6.5")) {
		t.Errorf("balance = %s, want 6.5", got.Balance)
	}
	if !got.TotalEarned.Equal(dec(t, "10")) {
		t.Errorf("total earned = %s, want 10", got.TotalEarned)
	}
	if !got.TotalSpent.Equal(dec(t, "3.5")) {
		t.Errorf("total spent = %s, want 3.5", got.TotalSpent)
	}
	// The invariant: balance == earned - spent.
	if !got.Balance.Equal(got.TotalEarned.Sub(got.TotalSpent)) {
		t.Errorf("invariant broken: %s != %s - %s", got.Balance, got.TotalEarned, got.TotalSpent)
	}
}

func TestAppendRejectsZeroAmount(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")

	_, err := ls.Append(context.Background(), AppendParams{
		AccountID: account.ID, Amount: decimal.Zero, Type: model.TxTaskReward,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestAppendRejectsSignMismatch(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")
	ctx := context.Background()

	// Credit type with a negative amount
	_, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "-1"), Type: model.TxTaskReward,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("credit type, negative amount: err = %v, want ErrInvalidAmount", err)
	}

	// Debit type with a positive amount
	_, err = ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "1"), Type: model.TxConsumption,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("debit type, positive amount: err = %v, want ErrInvalidAmount", err)
	}
}

func TestAppendInsufficientFunds(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")
	ctx := context.Background()

	if _, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "2"), Type: model.TxTaskReward,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "-5"), Type: model.TxConsumption,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// The failed debit must leave no trace: balance intact, no entry.
	got, err := as.GetByID(account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.Balance.Equal(dec(t, "2")) {
		t.Errorf("balance = %s, want 2", got.Balance)
	}
	entries, err := ls.History(HistoryFilter{AccountID: &account.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestAppendAccountNotFound(t *testing.T) {
	ls, _ := setupLedgerTestDB(t)

	_, err := ls.Append(context.Background(), AppendParams{
		AccountID: 9999, Amount: dec(t, "1"), Type: model.TxTaskReward,
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestAppendIdempotentReplay(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	account := mustAccount(t, as, "alice")
	ctx := context.Background()

	params := AppendParams{
		AccountID:      account.ID,
		Amount:         dec(t, "5"),
		Type:           model.TxAdminAirdrop,
		IdempotencyKey: "airdrop-2026-01:1",
	}

	first, err := ls.Append(ctx, params)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := ls.Append(ctx, params)
	if err != nil {
		t.Fatalf("replay append: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay entry id = %d, want original %d", second.ID, first.ID)
	}

	got, err := as.GetByID(account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.Balance.Equal(dec(t, "5")) {
		t.Errorf("balance = %s, want 5 (credited once)", got.Balance)
	}
}

func TestHistoryPagingAndFilters(t *testing.T) {
	ls, as := setupLedgerTestDB(t)
	alice := mustAccount(t, as, "alice")
	bob := mustAccount(t, as, "bob")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := ls.Append(ctx, AppendParams{
			AccountID: alice.ID, Amount: dec(t, "1"), Type: model.TxTaskReward,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := ls.Append(ctx, AppendParams{
		AccountID: bob.ID, Amount: dec(t, "2"), Type: model.TxAdminAirdrop,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := ls.Append(ctx, AppendParams{
		AccountID: alice.ID, Amount: dec(t, "-1"), Type: model.TxConsumption,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Global feed, newest first
	all, err := ls.History(HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("global entries = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID >= all[i-1].ID {
			t.Fatal("entries not in reverse-chronological order")
		}
	}

	// Account filter
	aliceOnly, err := ls.History(HistoryFilter{AccountID: &alice.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(aliceOnly) != 4 {
		t.Errorf("alice entries = %d, want 4", len(aliceOnly))
	}

	// Type filter
	txType := model.TxConsumption
	spends, err := ls.History(HistoryFilter{Type: &txType})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(spends) != 1 {
		t.Errorf("consumption entries = %d, want 1", len(spends))
	}

	// Keyset paging
	page1, err := ls.History(HistoryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 entries = %d, want 2", len(page1))
	}
	page2, err := ls.History(HistoryFilter{Limit: 2, BeforeID: page1[1].ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page 2 entries = %d, want 2", len(page2))
	}
	if page2[0].ID >= page1[1].ID {
		t.Error("page 2 should be strictly older than page 1")
	}
}

// Concurrency needs a real file: a :memory: database is private to each
// pooled connection.
func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	ls := NewLedgerStore(db)
	as := NewAccountStore(db)
	account := mustAccount(t, as, "alice")
	ctx := context.Background()

	if _, err := ls.Append(ctx, AppendParams{
		AccountID: account.ID, Amount: dec(t, "10"), Type: model.TxTaskReward,
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ls.Append(ctx, AppendParams{
				AccountID: account.ID, Amount: dec(t, "-2"), Type: model.TxConsumption,
			})
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Errorf("succeeded = %d, want 5", succeeded)
	}
	if insufficient != 5 {
		t.Errorf("insufficient = %d, want 5", insufficient)
	}

	got, err := as.GetByID(account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.Balance.IsZero() {
		t.Errorf("final balance = %s, want 0", got.Balance)
	}
}
