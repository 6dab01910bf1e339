package economy

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/canvashq/canvas/internal/database"
	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
	"github.com/canvashq/canvas/internal/store"
)

// capturePublisher records notices for assertions.
type capturePublisher struct {
	mu      sync.Mutex
	notices []model.PublicNotice
}

func (p *capturePublisher) Publish(n model.PublicNotice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
}

type airdropFixture struct {
	db        *sql.DB
	airdrop   *Airdropper
	accounts  *store.AccountStore
	ledger    *store.LedgerStore
	published *capturePublisher
}

func setupAirdropFixture(t *testing.T) *airdropFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db)
	ledger := store.NewLedgerStore(db)
	published := &capturePublisher{}
	return &airdropFixture{
		db:        db,
		airdrop:   NewAirdropper(db, accounts, ledger, published, discardLogger()),
		accounts:  accounts,
		ledger:    ledger,
		published: published,
	}
}

func TestAirdropAll(t *testing.T) {
	f := setupAirdropFixture(t)
	alice := mustAccount(t, f.accounts, "alice")
	bob := mustAccount(t, f.accounts, "bob")

	entries, err := f.airdrop.Airdrop(context.Background(), 1, notice.SelectAll(), dec(t, "10"), "anniversary bonus", "")
	if err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("credited = %d, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.Type != model.TxAdminAirdrop || !entry.Amount.Equal(dec(t, "10")) {
			t.Errorf("entry = %s %s, want admin_airdrop 10", entry.Type, entry.Amount)
		}
	}

	for _, id := range []int64{alice.ID, bob.ID} {
		account, err := f.accounts.GetByID(id)
		if err != nil {
			t.Fatalf("get account %d: %v", id, err)
		}
		if !account.Balance.Equal(dec(t, "10")) {
			t.Errorf("account %d balance = %s, want 10", id, account.Balance)
		}
	}

	if len(f.published.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.published.notices))
	}
	if f.published.notices[0].Reason != "anniversary bonus" {
		t.Errorf("notice reason = %q, want anniversary bonus", f.published.notices[0].Reason)
	}
}

func TestAirdropGroup(t *testing.T) {
	f := setupAirdropFixture(t)
	curator, err := f.accounts.Create("alice", "curators")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	other := mustAccount(t, f.accounts, "bob")

	entries, err := f.airdrop.Airdrop(context.Background(), 1, notice.SelectGroup("curators"), dec(t, "5"), "curator stipend", "")
	if err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("credited = %d, want 1", len(entries))
	}

	got, _ := f.accounts.GetByID(curator.ID)
	if !got.Balance.Equal(dec(t, "5")) {
		t.Errorf("curator balance = %s, want 5", got.Balance)
	}
	untouched, _ := f.accounts.GetByID(other.ID)
	if !untouched.Balance.IsZero() {
		t.Errorf("non-member balance = %s, want 0", untouched.Balance)
	}
}

func TestAirdropIdempotentRetry(t *testing.T) {
	f := setupAirdropFixture(t)
	account := mustAccount(t, f.accounts, "alice")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.airdrop.Airdrop(ctx, 1, notice.SelectIDs(account.ID), dec(t, "10"), "launch bonus", "airdrop-launch-2026"); err != nil {
			t.Fatalf("airdrop %d: %v", i+1, err)
		}
	}

	got, _ := f.accounts.GetByID(account.ID)
	if !got.Balance.Equal(dec(t, "10")) {
		t.Errorf("balance = %s, want 10 (credited once)", got.Balance)
	}
	entries, err := f.ledger.History(store.HistoryFilter{AccountID: &account.ID})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestAirdropRejectsNonPositiveAmount(t *testing.T) {
	f := setupAirdropFixture(t)
	mustAccount(t, f.accounts, "alice")

	_, err := f.airdrop.Airdrop(context.Background(), 1, notice.SelectAll(), dec(t, "0"), "nothing", "")
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v, want ErrInvalidAmount", err)
	}
	_, err = f.airdrop.Airdrop(context.Background(), 1, notice.SelectAll(), dec(t, "-1"), "nothing", "")
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("negative amount err = %v, want ErrInvalidAmount", err)
	}
}

func TestAirdropEmptyAudience(t *testing.T) {
	f := setupAirdropFixture(t)

	entries, err := f.airdrop.Airdrop(context.Background(), 1, notice.SelectGroup("ghosts"), dec(t, "10"), "no recipients", "")
	if err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("credited = %d, want 0", len(entries))
	}
	if len(f.published.notices) != 0 {
		t.Errorf("notices = %d, want 0 for an empty audience", len(f.published.notices))
	}

	_, err = f.airdrop.Airdrop(context.Background(), 1, notice.SelectIDs(), dec(t, "10"), "bad selector", "")
	if !errors.Is(err, notice.ErrInvalidTarget) {
		t.Fatalf("empty id set err = %v, want ErrInvalidTarget", err)
	}
}
