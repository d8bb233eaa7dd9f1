package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// testClock returns a deterministic clock starting at a fixed instant and
// advancing one second per call.
func testClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestEngine builds an engine over fresh in-memory backends with a
// deterministic clock and a silent logger.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithClock(testClock()),
		WithLogger(silentLogger()),
		WithCommitRetries(3, time.Millisecond),
	}
	return NewEngine(NewMemoryStore(), NewMemoryLog(), append(base, opts...)...)
}

// seedAccount provisions an account and funds it with an initial balance.
func seedAccount(t *testing.T, e *Engine, id, owner string, balance Money) Account {
	t.Helper()
	ctx := context.Background()
	acc, err := e.ProvisionAccount(ctx, id, owner, balance.Currency())
	if err != nil {
		t.Fatalf("ProvisionAccount(%s): %v", id, err)
	}
	if balance.IsZero() {
		return acc
	}
	mustCommit(t, e, NewDeposit("seed-"+id, "", id, balance))
	acc, err = e.Account(ctx, id)
	if err != nil {
		t.Fatalf("Account(%s): %v", id, err)
	}
	return acc
}

// seedHolding provisions an asset holding outside of custody.
func seedHolding(t *testing.T, e *Engine, id, owner string, class AssetClass, valuation Money) AssetHolding {
	t.Helper()
	h, err := e.ProvisionHolding(context.Background(), AssetHolding{ID: id, Owner: owner, Class: class, Valuation: valuation})
	if err != nil {
		t.Fatalf("ProvisionHolding(%s): %v", id, err)
	}
	return h
}

// mustCommit submits a request and fails the test unless it commits.
func mustCommit(t *testing.T, e *Engine, req Request) Transaction {
	t.Helper()
	tx, err := e.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit(%s %q): %v", req.Kind(), req.Key(), err)
	}
	if tx.Status != StatusCommitted {
		t.Fatalf("Submit(%s %q) = %s (%s: %s), want committed", req.Kind(), req.Key(), tx.Status, tx.Reason, tx.Message)
	}
	return tx
}

// mustReject submits a request and fails the test unless it is rejected with
// the wanted reason.
func mustReject(t *testing.T, e *Engine, req Request, want Reason) Transaction {
	t.Helper()
	tx, err := e.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit(%s %q): %v", req.Kind(), req.Key(), err)
	}
	if tx.Status != StatusRejected {
		t.Fatalf("Submit(%s %q) = %s, want rejected", req.Kind(), req.Key(), tx.Status)
	}
	if tx.Reason != want {
		t.Fatalf("Submit(%s %q) rejected with %q, want %q", req.Kind(), req.Key(), tx.Reason, want)
	}
	return tx
}
