package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record := func(key string, entities ...Entity) Transaction {
		effects := make([]Effect, len(entities))
		for i, e := range entities {
			effects[i] = Effect{Entity: e}
		}
		applied := at
		return Transaction{ID: "tx-" + key, Key: key, Kind: KindDeposit, Effects: effects, SubmittedAt: at, AppliedAt: &applied, Status: StatusCommitted}
	}
	acc1 := Account{ID: "acc-1", Owner: "alice", Currency: "EUR", Balance: M(10, "EUR"), Status: AccountActive}
	acc2 := Account{ID: "acc-2", Owner: "bob", Currency: "EUR", Balance: M(20, "EUR"), Status: AccountActive}

	if err := l.Append(ctx, record("k-1", acc1)); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, record("k-2", acc1, acc2)); err != nil {
		t.Fatal(err)
	}

	// Keys are unique forever.
	if err := l.Append(ctx, record("k-1", acc2)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate key err = %v, want ErrAlreadyExists", err)
	}
	// A record needs a key.
	if err := l.Append(ctx, Transaction{ID: "tx-x", Status: StatusCommitted}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("keyless record err = %v, want ErrInvalidRequest", err)
	}

	tx, err := l.ByKey(ctx, "k-1")
	if err != nil {
		t.Fatal(err)
	}
	if tx.ID != "tx-k-1" {
		t.Errorf("ByKey = %q, want tx-k-1", tx.ID)
	}
	if _, err := l.ByKey(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByKey(missing) err = %v, want ErrNotFound", err)
	}

	for _, tc := range []struct {
		entity string
		want   int
	}{
		{"acc-1", 2},
		{"acc-2", 1},
		{"acc-9", 0},
	} {
		txs, err := l.ByEntity(ctx, tc.entity)
		if err != nil {
			t.Fatal(err)
		}
		if len(txs) != tc.want {
			t.Errorf("ByEntity(%s) = %d records, want %d", tc.entity, len(txs), tc.want)
		}
	}

	all, err := l.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Key != "k-1" || all[1].Key != "k-2" {
		t.Errorf("All = %v, want k-1 then k-2", all)
	}

	// Records are immutable once appended: mutating a returned copy must
	// not reach the log.
	all[0].Effects[0].Entity = acc2
	tx, _ = l.ByKey(ctx, "k-1")
	if tx.Effects[0].Entity.EntityID() != "acc-1" {
		t.Error("log record mutated through a returned copy")
	}
}
