package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestSubmit_DepositAndWithdraw(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))

	mustCommit(t, e, NewDeposit("dep-1", "alice", "acc-1", M(50, "EUR")))
	mustCommit(t, e, NewWithdrawal("wd-1", "alice", "acc-1", M(30, "EUR")))

	acc, err := e.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(120, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", acc.Balance, want)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))
	seedAccount(t, e, "acc-2", "bob", M(20, "EUR"))
	seedAccount(t, e, "acc-3", "carol", M(5, "USD"))

	testCases := []struct {
		name string
		req  Request
		want Reason
	}{
		{"insufficient funds", NewTransfer("t-1", "alice", "acc-1", "acc-2", M(500, "EUR")), ReasonInsufficientFunds},
		{"zero amount", NewDeposit("t-2", "alice", "acc-1", Zero("EUR")), ReasonInvalidAmount},
		{"negative amount", NewDeposit("t-3", "alice", "acc-1", M(-10, "EUR")), ReasonInvalidAmount},
		{"currency mismatch", NewDeposit("t-4", "alice", "acc-1", M(10, "USD")), ReasonCurrencyMismatch},
		{"cross currency transfer", NewTransfer("t-5", "alice", "acc-1", "acc-3", M(10, "EUR")), ReasonCurrencyMismatch},
		{"unknown account", NewDeposit("t-6", "alice", "nope", M(10, "EUR")), ReasonNotFound},
		{"not the owner", NewWithdrawal("t-7", "mallory", "acc-1", M(10, "EUR")), ReasonNotOwner},
		{"self transfer", NewTransfer("t-8", "alice", "acc-1", "acc-1", M(10, "EUR")), ReasonInvalidState},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mustReject(t, e, tc.req, tc.want)
		})
	}

	// None of the rejections may have moved a cent.
	acc, err := e.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(100, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("acc-1 balance = %s, want untouched %s", acc.Balance, want)
	}
}

func TestSubmit_RejectionIsRecorded(t *testing.T) {
	e := newTestEngine(t)
	seedAccount(t, e, "acc-1", "alice", M(10, "EUR"))

	mustReject(t, e, NewWithdrawal("over", "alice", "acc-1", M(99, "EUR")), ReasonInsufficientFunds)

	tx, err := e.TransactionByKey(context.Background(), "over")
	if err != nil {
		t.Fatalf("TransactionByKey: %v", err)
	}
	if tx.Status != StatusRejected || tx.Reason != ReasonInsufficientFunds {
		t.Errorf("recorded tx = %s/%s, want rejected/insufficient_funds", tx.Status, tx.Reason)
	}
	if tx.Message == "" {
		t.Error("recorded tx has no message")
	}
	if len(tx.Effects) != 0 {
		t.Errorf("rejected tx carries %d effects, want none", len(tx.Effects))
	}
}

func TestSubmit_FrozenAndClosedAccounts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))

	if _, err := e.SetAccountStatus(ctx, "acc-1", AccountFrozen); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	mustReject(t, e, NewDeposit("dep-frozen", "alice", "acc-1", M(10, "EUR")), ReasonAccountNotActive)

	// Unfreeze and verify the account works again.
	if _, err := e.SetAccountStatus(ctx, "acc-1", AccountActive); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	mustCommit(t, e, NewDeposit("dep-active", "alice", "acc-1", M(10, "EUR")))

	// Closed is terminal.
	if _, err := e.SetAccountStatus(ctx, "acc-1", AccountClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.SetAccountStatus(ctx, "acc-1", AccountActive); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reopen closed account: err = %v, want ErrInvalidState", err)
	}
}

func TestSubmit_Idempotency(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))
	seedAccount(t, e, "acc-2", "bob", Zero("EUR"))

	first := mustCommit(t, e, NewTransfer("pay-42", "alice", "acc-1", "acc-2", M(25, "EUR")))

	// Replaying the same key returns the first outcome without re-applying.
	second, err := e.Submit(ctx, NewTransfer("pay-42", "alice", "acc-1", "acc-2", M(25, "EUR")))
	if err != nil {
		t.Fatalf("replayed Submit: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replayed tx id = %q, want original %q", second.ID, first.ID)
	}
	acc, err := e.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(75, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("balance after replay = %s, want %s (applied once)", acc.Balance, want)
	}

	// A rejected outcome is just as cached as a committed one.
	rej := mustReject(t, e, NewWithdrawal("wd-big", "alice", "acc-1", M(1000, "EUR")), ReasonInsufficientFunds)
	again, err := e.Submit(ctx, NewWithdrawal("wd-big", "alice", "acc-1", M(1000, "EUR")))
	if err != nil {
		t.Fatalf("replayed rejected Submit: %v", err)
	}
	if again.ID != rej.ID || again.Status != StatusRejected {
		t.Errorf("replayed rejection = %s/%s, want original %s", again.ID, again.Status, rej.ID)
	}

	// A missing key is a contract error, not a transaction.
	if _, err := e.Submit(ctx, NewDeposit("", "alice", "acc-1", M(1, "EUR"))); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("submit without key: err = %v, want ErrInvalidRequest", err)
	}
}

func TestSubmit_CustodyLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedHolding(t, e, "vault-1", "alice", ClassPreciousMetal, M(50000, "EUR"))

	issued := mustCommit(t, e, NewCustodyIssue("issue-1", "alice", "vault-1"))
	var receipt CustodyReceipt
	for _, eff := range issued.Effects {
		if r, ok := eff.Entity.(CustodyReceipt); ok {
			receipt = r
		}
	}
	if receipt.ID == "" {
		t.Fatal("issuance committed without a receipt effect")
	}
	if !strings.HasPrefix(receipt.Number, "SKR-") {
		t.Errorf("receipt number %q is not SKR- prefixed", receipt.Number)
	}
	if receipt.Owner != "alice" || receipt.Holding != "vault-1" {
		t.Errorf("receipt = %+v, want owner alice over vault-1", receipt)
	}

	// One active receipt per holding.
	mustReject(t, e, NewCustodyIssue("issue-2", "alice", "vault-1"), ReasonCustodyHeld)

	// Only the owner can redeem.
	mustReject(t, e, NewCustodyRedeem("redeem-bad", "mallory", receipt.ID), ReasonNotOwner)
	mustCommit(t, e, NewCustodyRedeem("redeem-1", "alice", receipt.ID))

	// Redeemed is terminal.
	mustReject(t, e, NewCustodyRedeem("redeem-again", "alice", receipt.ID), ReasonInvalidState)

	// The redeemed receipt frees the holding for a fresh issuance with a
	// new number; the old receipt stays on record.
	reissued := mustCommit(t, e, NewCustodyIssue("issue-3", "alice", "vault-1"))
	var fresh CustodyReceipt
	for _, eff := range reissued.Effects {
		if r, ok := eff.Entity.(CustodyReceipt); ok {
			fresh = r
		}
	}
	if fresh.ID == receipt.ID || fresh.Number == receipt.Number {
		t.Errorf("re-issuance reused receipt identity %s/%s", fresh.ID, fresh.Number)
	}
	old, err := e.CustodyReceipt(ctx, receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != ReceiptRedeemed {
		t.Errorf("old receipt status = %s, want redeemed", old.Status)
	}
}

func TestSubmit_SecureCustodyIsAtomic(t *testing.T) {
	// Exhaust the receipt number space so issuance fails after the holding
	// was staged: the holding must not survive the rejection.
	e := newTestEngine(t, WithReceiptNumbers(func() string { return "SKR-DUP" }))
	ctx := context.Background()
	seedHolding(t, e, "vault-0", "alice", ClassPreciousMetal, M(1, "EUR"))
	mustCommit(t, e, NewCustodyIssue("issue-0", "alice", "vault-0"))

	holding := AssetHolding{ID: "vault-1", Owner: "alice", Class: ClassRealEstate, Valuation: M(900000, "EUR")}
	mustReject(t, e, NewSecureCustody("secure-1", "alice", holding), ReasonReceiptAllocation)

	if _, err := e.AssetHolding(ctx, "vault-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("holding survived the rejected composite: err = %v, want ErrNotFound", err)
	}
}

func TestSubmit_SecureCustody(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	holding := AssetHolding{ID: "vault-1", Owner: "alice", Class: ClassRealEstate, Valuation: M(900000, "EUR")}
	tx := mustCommit(t, e, NewSecureCustody("secure-1", "alice", holding))
	if len(tx.Effects) != 2 {
		t.Fatalf("secure custody committed %d effects, want holding + receipt", len(tx.Effects))
	}

	h, err := e.AssetHolding(ctx, "vault-1")
	if err != nil {
		t.Fatal(err)
	}
	if h.Owner != "alice" || h.Class != ClassRealEstate {
		t.Errorf("holding = %+v", h)
	}
	svc := NewCustodyService(e)
	if _, err := svc.ActiveReceipt(ctx, "vault-1"); err != nil {
		t.Errorf("ActiveReceipt: %v", err)
	}
}

func TestSubmit_TokenLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedHolding(t, e, "vault-1", "alice", ClassCrypto, M(100, "EUR"))

	minted := mustCommit(t, e, NewTokenize("mint-1", "alice", "vault-1"))
	var token DigitalToken
	for _, eff := range minted.Effects {
		if tok, ok := eff.Entity.(DigitalToken); ok {
			token = tok
		}
	}
	if token.ID == "" {
		t.Fatal("tokenize committed without a token effect")
	}
	if !strings.HasPrefix(token.Reference, "TKN-") {
		t.Errorf("token reference %q is not TKN- prefixed", token.Reference)
	}

	// At most one live token per holding.
	mustReject(t, e, NewTokenize("mint-2", "alice", "vault-1"), ReasonAlreadyTokenized)

	mustCommit(t, e, NewBurnToken("burn-1", "alice", token.ID))
	mustReject(t, e, NewBurnToken("burn-2", "alice", token.ID), ReasonInvalidState)

	// Burning frees the holding for a new mint; the burned token remains.
	remint := mustCommit(t, e, NewTokenize("mint-3", "alice", "vault-1"))
	var fresh DigitalToken
	for _, eff := range remint.Effects {
		if tok, ok := eff.Entity.(DigitalToken); ok {
			fresh = tok
		}
	}
	if fresh.ID == token.ID || fresh.Reference == token.Reference {
		t.Errorf("re-mint reused token identity %s/%s", fresh.ID, fresh.Reference)
	}
	burned, err := e.DigitalToken(ctx, token.ID)
	if err != nil {
		t.Fatal(err)
	}
	if burned.Status != TokenBurned {
		t.Errorf("old token status = %s, want burned", burned.Status)
	}
}

func TestSubmit_TrustAllocate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(1000, "EUR"))
	seedHolding(t, e, "vault-1", "junior", ClassEquity, M(5000, "EUR"))
	seedHolding(t, e, "vault-2", "alice", ClassEquity, M(5000, "EUR"))
	if _, err := e.ProvisionTrust(ctx, "trust-1", "junior", "education", "EUR"); err != nil {
		t.Fatalf("ProvisionTrust: %v", err)
	}

	mustCommit(t, e, NewTrustAllocate("alloc-1", "alice", "trust-1", "acc-1", M(400, "EUR"), "vault-1"))

	trust, err := e.TrustRecord(ctx, "trust-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(400, "EUR"); !trust.Balance.Equal(want) {
		t.Errorf("trust balance = %s, want %s", trust.Balance, want)
	}
	if !trust.Holdings["vault-1"] {
		t.Errorf("trust holdings = %v, want vault-1 attached", trust.Holdings)
	}
	acc, err := e.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(600, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("funding account balance = %s, want %s", acc.Balance, want)
	}

	// A holding not owned by the beneficiary cannot be attached, and the
	// funding leg must roll back with it.
	mustReject(t, e, NewTrustAllocate("alloc-2", "alice", "trust-1", "acc-1", M(100, "EUR"), "vault-2"), ReasonNotOwner)
	acc, _ = e.Account(ctx, "acc-1")
	if want := M(600, "EUR"); !acc.Balance.Equal(want) {
		t.Errorf("funding account balance after rejection = %s, want untouched %s", acc.Balance, want)
	}

	// An allocation without amount nor holdings carries no effect.
	mustReject(t, e, NewTrustAllocate("alloc-3", "alice", "trust-1", "acc-1", Zero("EUR")), ReasonInvalidAmount)
}

func TestSubmit_Revalue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedHolding(t, e, "vault-1", "alice", ClassRealEstate, M(500000, "EUR"))

	before, err := e.AssetHolding(ctx, "vault-1")
	if err != nil {
		t.Fatal(err)
	}
	mustCommit(t, e, NewRevalue("rev-1", "alice", "vault-1", M(520000, "EUR")))

	h, err := e.AssetHolding(ctx, "vault-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := M(520000, "EUR"); !h.Valuation.Equal(want) {
		t.Errorf("valuation = %s, want %s", h.Valuation, want)
	}
	if !h.ValuedAt.After(before.ValuedAt) {
		t.Errorf("ValuedAt = %v, want after %v", h.ValuedAt, before.ValuedAt)
	}

	mustReject(t, e, NewRevalue("rev-2", "mallory", "vault-1", M(1, "EUR")), ReasonNotOwner)
	mustReject(t, e, NewRevalue("rev-3", "alice", "vault-1", M(520000, "USD")), ReasonCurrencyMismatch)
	mustReject(t, e, NewRevalue("rev-4", "alice", "vault-1", Zero("EUR")), ReasonInvalidAmount)
}

func TestSubmit_LockTimeout(t *testing.T) {
	e := newTestEngine(t, WithLockTimeout(20*time.Millisecond))
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))

	// Hold the entity lock so the submit cannot make progress.
	release, err := e.locks.acquire(context.Background(), []string{"acc-1"}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = e.Submit(context.Background(), NewDeposit("dep-1", "alice", "acc-1", M(10, "EUR")))
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Submit under held lock: err = %v, want ErrLockTimeout", err)
	}
	if !IsRetryable(err) {
		t.Error("lock timeout must be retryable")
	}
}

// flakyStore fails a fixed number of writes before recovering.
type flakyStore struct {
	*MemoryStore
	failures int
}

func (s *flakyStore) Upsert(ctx context.Context, entities ...Entity) error {
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("synthetic write failure")
	}
	return s.MemoryStore.Upsert(ctx, entities...)
}

// brokenLog fails every append while broken.
type brokenLog struct {
	*MemoryLog
	broken bool
}

func (l *brokenLog) Append(ctx context.Context, tx Transaction) error {
	if l.broken {
		return fmt.Errorf("synthetic log failure")
	}
	return l.MemoryLog.Append(ctx, tx)
}

func TestSubmit_CommitRetries(t *testing.T) {
	t.Run("transient failure is retried", func(t *testing.T) {
		store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 0}
		e := NewEngine(store, NewMemoryLog(), WithClock(testClock()), WithLogger(silentLogger()), WithCommitRetries(3, time.Millisecond))
		seedAccount(t, e, "acc-1", "alice", Zero("EUR"))

		store.failures = 2
		mustCommit(t, e, NewDeposit("dep-1", "alice", "acc-1", M(10, "EUR")))
	})

	t.Run("failed append leaves nothing durable", func(t *testing.T) {
		log := &brokenLog{MemoryLog: NewMemoryLog()}
		store := NewMemoryStore()
		e := NewEngine(store, log, WithClock(testClock()), WithLogger(silentLogger()), WithCommitRetries(2, time.Millisecond))
		seedAccount(t, e, "acc-1", "alice", Zero("EUR"))

		log.broken = true
		tx, err := e.Submit(context.Background(), NewDeposit("dep-1", "alice", "acc-1", M(10, "EUR")))
		if !errors.Is(err, ErrCommitFailed) {
			t.Fatalf("err = %v, want ErrCommitFailed", err)
		}
		if tx.Status != StatusPending {
			t.Errorf("status = %s, want pending", tx.Status)
		}
		if !IsRetryable(err) {
			t.Error("commit failure must be retryable")
		}
		if _, err := e.TransactionByKey(context.Background(), "dep-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("undecided transaction was recorded: %v", err)
		}
		acc, err := e.Account(context.Background(), "acc-1")
		if err != nil {
			t.Fatal(err)
		}
		if !acc.Balance.IsZero() {
			t.Errorf("balance = %s, want untouched zero", acc.Balance)
		}

		// Resubmitting under the same key succeeds once the log heals.
		log.broken = false
		mustCommit(t, e, NewDeposit("dep-1", "alice", "acc-1", M(10, "EUR")))
		acc, _ = e.Account(context.Background(), "acc-1")
		if want := M(10, "EUR"); !acc.Balance.Equal(want) {
			t.Errorf("balance = %s, want %s applied exactly once", acc.Balance, want)
		}
	})

	t.Run("resubmission never reapplies a decided transfer", func(t *testing.T) {
		store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 0}
		log := NewMemoryLog()
		e := NewEngine(store, log, WithClock(testClock()), WithLogger(silentLogger()), WithCommitRetries(2, time.Millisecond))
		seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))
		seedAccount(t, e, "acc-2", "bob", Zero("EUR"))

		// The record is appended, then every store write fails: the
		// decision is durable but the store lags behind the log.
		store.failures = 100
		if _, err := e.Submit(context.Background(), NewTransfer("pay-1", "alice", "acc-1", "acc-2", M(25, "EUR"))); !errors.Is(err, ErrCommitFailed) {
			t.Fatalf("err = %v, want ErrCommitFailed", err)
		}

		// Resubmitting returns the recorded decision without staging
		// from the store again.
		store.failures = 0
		tx, err := e.Submit(context.Background(), NewTransfer("pay-1", "alice", "acc-1", "acc-2", M(25, "EUR")))
		if err != nil {
			t.Fatal(err)
		}
		if tx.Status != StatusCommitted {
			t.Fatalf("status = %s, want committed", tx.Status)
		}

		// Replay converges the store to the log: the transfer is applied
		// exactly once, no money is lost or duplicated.
		if err := Replay(context.Background(), log, store); err != nil {
			t.Fatal(err)
		}
		acc1, _ := e.Account(context.Background(), "acc-1")
		acc2, _ := e.Account(context.Background(), "acc-2")
		if want := M(75, "EUR"); !acc1.Balance.Equal(want) {
			t.Errorf("acc-1 = %s, want %s", acc1.Balance, want)
		}
		if want := M(25, "EUR"); !acc2.Balance.Equal(want) {
			t.Errorf("acc-2 = %s, want %s", acc2.Balance, want)
		}
	})
}

func TestSubmit_ContextCanceled(t *testing.T) {
	e := newTestEngine(t)
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Submit(ctx, NewDeposit("dep-1", "alice", "acc-1", M(10, "EUR"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := e.TransactionByKey(context.Background(), "dep-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("canceled submit left a record: %v", err)
	}
}

func TestProvision_Duplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.ProvisionAccount(ctx, "acc-1", "alice", "EUR"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ProvisionAccount(ctx, "acc-1", "bob", "USD"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("re-provisioning: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := e.ProvisionAccount(ctx, "acc-1", "alice", "USD"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("re-provisioning with another currency: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := e.ProvisionAccount(ctx, "acc-2", "", "EUR"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("ownerless account: err = %v, want ErrInvalidRequest", err)
	}

	// Re-provisioning the identical account is idempotent and returns the
	// stored record, not a fresh one.
	stored, err := e.Account(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	again, err := e.ProvisionAccount(ctx, "acc-1", "alice", "EUR")
	if err != nil {
		t.Fatalf("identical re-provisioning: %v", err)
	}
	if !reflect.DeepEqual(stored, again) {
		t.Errorf("identical re-provisioning = %+v, want stored record %+v", again, stored)
	}
}

func TestTransactionsFor(t *testing.T) {
	e := newTestEngine(t)
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))
	seedAccount(t, e, "acc-2", "bob", Zero("EUR"))
	mustCommit(t, e, NewTransfer("pay-1", "alice", "acc-1", "acc-2", M(10, "EUR")))
	mustCommit(t, e, NewWithdrawal("wd-1", "alice", "acc-1", M(5, "EUR")))

	txs, err := e.TransactionsFor(context.Background(), "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, tx := range txs {
		keys = append(keys, tx.Key)
	}
	want := []string{"provision:account:acc-1", "seed-acc-1", "pay-1", "wd-1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("audit trail = %v, want %v", keys, want)
	}

	// A mint writes only the token, but it still touched the holding and
	// must show up in the holding's trail.
	seedHolding(t, e, "vault-1", "alice", ClassEquity, M(500, "EUR"))
	mustCommit(t, e, NewTokenize("mint-1", "alice", "vault-1"))
	txs, err = e.TransactionsFor(context.Background(), "vault-1")
	if err != nil {
		t.Fatal(err)
	}
	keys = keys[:0]
	for _, tx := range txs {
		keys = append(keys, tx.Key)
	}
	want = []string{"provision:holding:vault-1", "mint-1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("holding audit trail = %v, want %v", keys, want)
	}
}

func TestReplay_ReproducesState(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A mixed workload including rejections.
	seedAccount(t, e, "acc-1", "alice", M(1000, "EUR"))
	seedAccount(t, e, "acc-2", "bob", M(50, "EUR"))
	mustCommit(t, e, NewTransfer("pay-1", "alice", "acc-1", "acc-2", M(123.45, "EUR")))
	mustReject(t, e, NewWithdrawal("wd-big", "bob", "acc-2", M(9999, "EUR")), ReasonInsufficientFunds)
	mustCommit(t, e, NewSecureCustody("secure-1", "alice", AssetHolding{ID: "vault-1", Owner: "alice", Class: ClassPreciousMetal, Valuation: M(50000, "EUR")}))
	mustCommit(t, e, NewTokenize("mint-1", "alice", "vault-1"))
	if _, err := e.ProvisionTrust(ctx, "trust-1", "bob", "family", "EUR"); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, e, NewTrustAllocate("alloc-1", "alice", "trust-1", "acc-1", M(100, "EUR")))
	if _, err := e.SetAccountStatus(ctx, "acc-2", AccountFrozen); err != nil {
		t.Fatal(err)
	}

	// Replaying the log from scratch must land on the exact same entities.
	fresh := NewMemoryStore()
	if err := Replay(ctx, e.log, fresh); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want, err := e.store.List(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fresh.List(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("replayed %d entities, want %d", len(got), len(want))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Errorf("entity %s diverged after replay:\n got %+v\nwant %+v", want[i].EntityID(), got[i], want[i])
		}
	}

	// Replay is idempotent.
	if err := Replay(ctx, e.log, fresh); err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	again, _ := fresh.List(ctx, nil)
	if !reflect.DeepEqual(again, got) {
		t.Error("second replay changed state")
	}
}

func TestSubmit_ConcurrentDisjointRequests(t *testing.T) {
	e := newTestEngine(t)
	const n = 8
	for i := 0; i < n; i++ {
		seedAccount(t, e, fmt.Sprintf("acc-%d", i), "alice", M(100, "EUR"))
	}

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			id := fmt.Sprintf("acc-%d", i)
			_, err := e.Submit(context.Background(), NewDeposit("dep-"+id, "alice", id, M(1, "EUR")))
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent submit: %v", err)
		}
	}
	for i := 0; i < n; i++ {
		acc, err := e.Account(context.Background(), fmt.Sprintf("acc-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if want := M(101, "EUR"); !acc.Balance.Equal(want) {
			t.Errorf("acc-%d balance = %s, want %s", i, acc.Balance, want)
		}
	}
}

func TestSubmit_ReadersSeeWholeCommits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seedAccount(t, e, "acc-1", "alice", M(100, "EUR"))
	seedAccount(t, e, "acc-2", "alice", Zero("EUR"))

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 10; i++ {
			if _, err := e.Submit(ctx, NewTransfer(fmt.Sprintf("pay-%d", i), "alice", "acc-1", "acc-2", M(10, "EUR"))); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	// A snapshot read taken at any instant sees either both legs of a
	// transfer or neither: the total across the book never moves.
	total := M(100, "EUR")
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
			return
		default:
		}
		accounts, err := e.Accounts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		sum := Zero("EUR")
		for _, acc := range accounts {
			if sum, err = sum.Add(acc.Balance); err != nil {
				t.Fatal(err)
			}
		}
		if !sum.Equal(total) {
			t.Fatalf("snapshot sums to %s, want %s at every instant", sum, total)
		}
	}
}
