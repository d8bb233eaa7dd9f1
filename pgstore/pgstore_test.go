package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/meridianbank/ledger"
)

// newTestBackend connects to TEST_DATABASE_URL, skipping when no database is
// available.
func newTestBackend(t *testing.T) (*Store, *Log) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewConnection(ctx, url)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE ledger_transaction_entities, ledger_transactions, ledger_entities")
		pool.Close()
	})
	return NewStore(pool), NewLog(pool)
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := newTestBackend(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	acc := ledger.Account{ID: "acc-1", Owner: "alice", Currency: "EUR", Balance: ledger.M(100, "EUR"), Status: ledger.AccountActive}
	if err := store.Upsert(ctx, acc); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	back, ok := got.(ledger.Account)
	if !ok {
		t.Fatalf("Get returned %T", got)
	}
	if !back.Balance.Equal(acc.Balance) || back.Owner != "alice" {
		t.Errorf("round trip = %+v, want %+v", back, acc)
	}

	// Upsert replaces.
	acc.Status = ledger.AccountFrozen
	if err := store.Upsert(ctx, acc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Get(ctx, "acc-1")
	if got.(ledger.Account).Status != ledger.AccountFrozen {
		t.Error("Upsert did not replace the record")
	}
}

func TestLog_AppendAndQuery(t *testing.T) {
	_, log := newTestBackend(t)
	ctx := context.Background()

	acc := ledger.Account{ID: "acc-1", Owner: "alice", Currency: "EUR", Balance: ledger.M(10, "EUR"), Status: ledger.AccountActive}
	tx := ledger.Transaction{ID: "tx-1", Key: "k-1", Kind: ledger.KindDeposit, Effects: []ledger.Effect{{Entity: acc}}, Status: ledger.StatusCommitted}
	if err := log.Append(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(ctx, tx); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Errorf("duplicate append err = %v, want ErrAlreadyExists", err)
	}

	got, err := log.ByKey(ctx, "k-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "tx-1" || len(got.Effects) != 1 {
		t.Errorf("ByKey = %+v", got)
	}
	txs, err := log.ByEntity(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Errorf("ByEntity = %d records, want 1", len(txs))
	}
}

// TestEngine_OverPostgres runs a full submit cycle against the SQL backends.
func TestEngine_OverPostgres(t *testing.T) {
	store, log := newTestBackend(t)
	ctx := context.Background()
	eng := ledger.NewEngine(store, log)

	if _, err := eng.ProvisionAccount(ctx, "acc-1", "alice", "EUR"); err != nil {
		t.Fatal(err)
	}
	tx, err := eng.Submit(ctx, ledger.NewDeposit("dep-1", "alice", "acc-1", ledger.M(75, "EUR")))
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != ledger.StatusCommitted {
		t.Fatalf("deposit = %s (%s)", tx.Status, tx.Message)
	}
	acc, err := eng.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := ledger.M(75, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", acc.Balance, want)
	}
}
