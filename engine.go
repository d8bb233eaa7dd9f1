package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Engine validates and applies transaction requests against the entity
// store, and owns every invariant. It is the only writer of the store and
// the log. All mutating operations touching overlapping entity sets are
// serialized through per-entity locks; disjoint sets proceed concurrently.
type Engine struct {
	store  EntityStore
	log    TransactionLog
	logger logrus.FieldLogger
	clock  func() time.Time
	newID  func() string

	locks          *lockTable
	lockTimeout    time.Duration
	commitRetries  uint64
	commitBackoff  time.Duration
	receiptRetries int
	receiptNumber  func() string
	tokenReference func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the timestamp source. The engine stores all timestamps
// in UTC.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger injects the structured logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithLockTimeout bounds how long a request waits for a conflicting
// transaction before failing with ErrLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithCommitRetries bounds the store I/O retries during commit.
func WithCommitRetries(n uint64, backoff time.Duration) Option {
	return func(e *Engine) { e.commitRetries, e.commitBackoff = n, backoff }
}

// WithReceiptNumbers injects the receipt number generator, mainly for tests.
func WithReceiptNumbers(gen func() string) Option {
	return func(e *Engine) { e.receiptNumber = gen }
}

// NewEngine creates an engine over a store and a log.
func NewEngine(store EntityStore, log TransactionLog, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		log:            log,
		logger:         logrus.StandardLogger(),
		clock:          time.Now,
		newID:          uuid.NewString,
		locks:          newLockTable(),
		lockTimeout:    5 * time.Second,
		commitRetries:  3,
		commitBackoff:  50 * time.Millisecond,
		receiptRetries: 5,
	}
	e.receiptNumber = func() string { return fmt.Sprintf("SKR-%08d", rand.Intn(100000000)) }
	e.tokenReference = func() string { return "TKN-" + strings.ToUpper(uuid.NewString()[:8]) }
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit takes a transaction request through Submitted → Validating →
// Committed|Rejected and returns the recorded transaction.
//
// A rejection is a result, not an engine failure: the transaction is
// returned with StatusRejected, a reason code and a nil error, and is never
// retried automatically. A non-nil error (ErrLockTimeout, ErrCommitFailed,
// context errors) means the request is undecided and may be resubmitted with
// the same idempotency key.
func (e *Engine) Submit(ctx context.Context, req Request) (Transaction, error) {
	if req == nil || req.Key() == "" {
		return Transaction{}, fmt.Errorf("%w: missing idempotency key", ErrInvalidRequest)
	}
	// Fast idempotency path: the log only ever holds decided records.
	if tx, err := e.log.ByKey(ctx, req.Key()); err == nil {
		return tx, nil
	}

	ids := lockOrder(req.lockSet())
	release, err := e.locks.acquire(ctx, ids, e.lockTimeout)
	if err != nil {
		return Transaction{}, err
	}
	defer release()

	// A concurrent submit with the same key may have decided while we
	// waited for the locks.
	if tx, err := e.log.ByKey(ctx, req.Key()); err == nil {
		return tx, nil
	}
	// Deadline expiry before validating cancels with no effects.
	if err := ctx.Err(); err != nil {
		return Transaction{}, err
	}

	now := e.clock().UTC()
	tx := Transaction{
		ID:          e.newID(),
		Key:         req.Key(),
		Kind:        req.Kind(),
		Caller:      req.Caller(),
		Touched:     ids,
		SubmittedAt: now,
		Status:      StatusPending,
	}

	s := newStaging(ctx, e, now)
	stageErr := req.stage(s)
	if stageErr == nil {
		stageErr = s.checkInvariants()
	}
	if stageErr != nil {
		if !IsRejection(stageErr) {
			// Contract or store failure: nothing staged is kept,
			// nothing is recorded.
			return Transaction{}, stageErr
		}
		tx.Status = StatusRejected
		tx.Reason = ReasonOf(stageErr)
		tx.Message = stageErr.Error()
		if err := e.commit(ctx, tx); err != nil {
			tx.Status = StatusPending
			tx.Reason = ReasonNone
			tx.Message = ""
			return tx, err
		}
		e.logger.WithFields(logrus.Fields{"key": tx.Key, "kind": tx.Kind, "reason": tx.Reason}).
			Info("transaction rejected")
		return tx, nil
	}

	applied := e.clock().UTC()
	tx.Effects = s.effects()
	tx.Status = StatusCommitted
	tx.AppliedAt = &applied
	if err := e.commit(ctx, tx); err != nil {
		tx.Status = StatusPending
		tx.AppliedAt = nil
		tx.Effects = nil
		return tx, err
	}
	e.logger.WithFields(logrus.Fields{"key": tx.Key, "kind": tx.Kind, "entities": len(tx.Effects)}).
		Info("transaction committed")
	return tx, nil
}

// commit makes the record durable and converges the store to its effects,
// retrying I/O failures a bounded number of times with backoff. The log
// append is the decision point: until it succeeds nothing is durable and the
// key stays free, so ErrCommitFailed is always safe to resubmit. Once the
// append has succeeded the decision is final; a store failure after that
// point never re-stages, the store lags the log and Replay converges it.
func (e *Engine) commit(ctx context.Context, tx Transaction) error {
	backoff := retry.WithMaxRetries(e.commitRetries, retry.NewFibonacci(e.commitBackoff))
	appended := false
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !appended {
			if err := e.log.Append(ctx, tx); err != nil {
				if errors.Is(err, ErrAlreadyExists) {
					return err
				}
				return retry.RetryableError(err)
			}
			appended = true
		}
		if len(tx.Effects) == 0 {
			return nil
		}
		entities := make([]Entity, len(tx.Effects))
		for i, eff := range tx.Effects {
			entities[i] = eff.Entity
		}
		if err := e.store.Upsert(ctx, entities...); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if appended {
			e.logger.WithFields(logrus.Fields{"key": tx.Key, "kind": tx.Kind}).WithError(err).
				Error("committed record not applied to the store; replay converges it")
		}
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

// --- provisioning ---

// ProvisionAccount creates an account with a zero balance. Provisioning is
// the one entity creation that is not a submittable transaction kind, but it
// is still recorded in the log (as a "provision" record) so that replay
// reproduces the full state.
func (e *Engine) ProvisionAccount(ctx context.Context, id, owner, currency string) (Account, error) {
	if owner == "" || currency == "" {
		return Account{}, fmt.Errorf("%w: account needs an owner and a currency", ErrInvalidRequest)
	}
	if id == "" {
		id = e.newID()
	}
	acc := Account{
		ID:       id,
		Owner:    owner,
		Currency: currency,
		Balance:  Zero(currency),
		Status:   AccountActive,
	}
	stored, err := e.provision(ctx, "provision:account:"+id, &acc)
	if err != nil {
		return Account{}, err
	}
	return stored.(Account), nil
}

// ProvisionHolding registers an asset holding outside of custody. Holdings
// can also be created atomically with their first receipt, see
// NewSecureCustody.
func (e *Engine) ProvisionHolding(ctx context.Context, h AssetHolding) (AssetHolding, error) {
	if h.ID == "" {
		h.ID = e.newID()
	}
	if err := checkHolding(h); err != nil {
		return AssetHolding{}, err
	}
	h.ValuedAt = e.clock().UTC()
	stored, err := e.provision(ctx, "provision:holding:"+h.ID, &h)
	if err != nil {
		return AssetHolding{}, err
	}
	return stored.(AssetHolding), nil
}

// ProvisionTrust creates an empty trust record for a beneficiary.
func (e *Engine) ProvisionTrust(ctx context.Context, id, beneficiary, trustType, currency string) (TrustRecord, error) {
	if beneficiary == "" || currency == "" {
		return TrustRecord{}, fmt.Errorf("%w: trust needs a beneficiary and a currency", ErrInvalidRequest)
	}
	if id == "" {
		id = e.newID()
	}
	trust := TrustRecord{
		ID:          id,
		Beneficiary: beneficiary,
		Type:        trustType,
		Balance:     Zero(currency),
		Status:      TrustActive,
	}
	stored, err := e.provision(ctx, "provision:trust:"+id, &trust)
	if err != nil {
		return TrustRecord{}, err
	}
	return stored.(TrustRecord), nil
}

// provision records the creation of a new entity under the given idempotency
// key and returns the stored record. Re-provisioning the identical entity is
// idempotent; re-provisioning an existing id with a different description
// fails with ErrAlreadyExists.
func (e *Engine) provision(ctx context.Context, key string, entity Entity) (Entity, error) {
	release, err := e.locks.acquire(ctx, []string{entity.EntityID()}, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	now := e.clock().UTC()
	switch v := entity.(type) {
	case *Account:
		v.CreatedAt = now
		entity = *v
	case *AssetHolding:
		entity = *v
	case *TrustRecord:
		entity = *v
	}

	if tx, err := e.log.ByKey(ctx, key); err == nil {
		recorded := tx.Effects[0].Entity
		if !sameProvision(recorded, entity) {
			return nil, fmt.Errorf("%w: entity %q", ErrAlreadyExists, entity.EntityID())
		}
		return recorded, nil
	}
	if _, err := e.store.Get(ctx, entity.EntityID()); err == nil {
		return nil, fmt.Errorf("%w: entity %q", ErrAlreadyExists, entity.EntityID())
	}

	applied := now
	tx := Transaction{
		ID:          e.newID(),
		Key:         key,
		Kind:        KindProvision,
		Touched:     []string{entity.EntityID()},
		Effects:     []Effect{{Entity: entity}},
		SubmittedAt: now,
		AppliedAt:   &applied,
		Status:      StatusCommitted,
	}
	if err := e.commit(ctx, tx); err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{"entity": entity.EntityID()}).Info("entity provisioned")
	return entity, nil
}

// sameProvision reports whether a provisioning request describes the entity
// already recorded under its key. Timestamps set by the engine are excluded
// from the comparison.
func sameProvision(recorded, candidate Entity) bool {
	switch r := recorded.(type) {
	case Account:
		c, ok := candidate.(Account)
		return ok && r.ID == c.ID && r.Owner == c.Owner && r.Currency == c.Currency &&
			r.Status == c.Status && r.Balance.Equal(c.Balance)
	case AssetHolding:
		c, ok := candidate.(AssetHolding)
		if !ok || r.ID != c.ID || r.Owner != c.Owner || r.Class != c.Class || !r.Valuation.Equal(c.Valuation) {
			return false
		}
		if (r.Quantity == nil) != (c.Quantity == nil) {
			return false
		}
		return r.Quantity == nil || r.Quantity.Equal(*c.Quantity)
	case TrustRecord:
		c, ok := candidate.(TrustRecord)
		return ok && r.ID == c.ID && r.Beneficiary == c.Beneficiary && r.Type == c.Type &&
			r.Status == c.Status && r.Balance.Equal(c.Balance)
	}
	return false
}

// SetAccountStatus freezes, unfreezes or closes an account. Closed is
// terminal. The change is recorded in the log like any other mutation.
func (e *Engine) SetAccountStatus(ctx context.Context, id string, status AccountStatus) (Account, error) {
	switch status {
	case AccountActive, AccountFrozen, AccountClosed:
	default:
		return Account{}, fmt.Errorf("%w: unknown account status %q", ErrInvalidRequest, status)
	}
	release, err := e.locks.acquire(ctx, []string{id}, e.lockTimeout)
	if err != nil {
		return Account{}, err
	}
	defer release()

	acc, err := e.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc.Status == status {
		return acc, nil
	}
	if acc.Status == AccountClosed {
		return Account{}, fmt.Errorf("%w: account %s is closed", ErrInvalidState, id)
	}
	acc.Status = status

	now := e.clock().UTC()
	applied := now
	tx := Transaction{
		ID:          e.newID(),
		Key:         "status:" + id + ":" + e.newID(),
		Kind:        KindProvision,
		Touched:     []string{id},
		Effects:     []Effect{{Entity: acc}},
		SubmittedAt: now,
		AppliedAt:   &applied,
		Status:      StatusCommitted,
	}
	if err := e.commit(ctx, tx); err != nil {
		return Account{}, err
	}
	e.logger.WithFields(logrus.Fields{"account": id, "status": status}).Info("account status changed")
	return acc, nil
}

// --- snapshot queries ---

// Account returns a snapshot of an account.
func (e *Engine) Account(ctx context.Context, id string) (Account, error) {
	return getAs[Account](ctx, e.store, id)
}

// Accounts returns a snapshot of every account, sorted by id.
func (e *Engine) Accounts(ctx context.Context) ([]Account, error) {
	entities, err := e.store.List(ctx, func(en Entity) bool {
		_, ok := en.(Account)
		return ok
	})
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(entities))
	for _, en := range entities {
		out = append(out, en.(Account))
	}
	return out, nil
}

// AssetHolding returns a snapshot of an asset holding.
func (e *Engine) AssetHolding(ctx context.Context, id string) (AssetHolding, error) {
	return getAs[AssetHolding](ctx, e.store, id)
}

// CustodyReceipt returns a snapshot of a custody receipt.
func (e *Engine) CustodyReceipt(ctx context.Context, id string) (CustodyReceipt, error) {
	return getAs[CustodyReceipt](ctx, e.store, id)
}

// TrustRecord returns a snapshot of a trust record.
func (e *Engine) TrustRecord(ctx context.Context, id string) (TrustRecord, error) {
	return getAs[TrustRecord](ctx, e.store, id)
}

// DigitalToken returns a snapshot of a digital token.
func (e *Engine) DigitalToken(ctx context.Context, id string) (DigitalToken, error) {
	return getAs[DigitalToken](ctx, e.store, id)
}

// TransactionsFor returns, in applied order, every transaction that touched
// the entity.
func (e *Engine) TransactionsFor(ctx context.Context, entityID string) ([]Transaction, error) {
	return e.log.ByEntity(ctx, entityID)
}

// TransactionByKey returns the transaction recorded under an idempotency key.
func (e *Engine) TransactionByKey(ctx context.Context, key string) (Transaction, error) {
	return e.log.ByKey(ctx, key)
}

func getAs[T Entity](ctx context.Context, store EntityStore, id string) (T, error) {
	var zero T
	e, err := store.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	v, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%w: entity %q is a %T", ErrNotFound, id, e)
	}
	return v, nil
}

// lockOrder sorts and dedupes the lock set; a globally consistent
// acquisition order is what prevents deadlock between overlapping requests.
func lockOrder(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// --- per-entity locks ---

type lockTable struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{sems: make(map[string]chan struct{})}
}

func (t *lockTable) sem(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	sem, ok := t.sems[id]
	if !ok {
		sem = make(chan struct{}, 1)
		t.sems[id] = sem
	}
	return sem
}

// acquire takes the exclusive lock of every id, in the given order, within
// one shared timeout. On failure it releases what it already holds.
func (t *lockTable) acquire(ctx context.Context, ids []string, timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(ids))
	release := func() {
		for _, sem := range held {
			<-sem
		}
	}
	for _, id := range ids {
		sem := t.sem(id)
		select {
		case sem <- struct{}{}:
			held = append(held, sem)
		case <-timer.C:
			release()
			return nil, fmt.Errorf("%w: waiting for entity %q", ErrLockTimeout, id)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

// --- staging ---

// staging is the computed, not-yet-committed effect set of one transaction
// under validation. Reads see staged writes first (read-your-writes), then
// the store snapshot.
type staging struct {
	ctx    context.Context
	eng    *Engine
	now    time.Time
	staged map[string]Entity
	order  []string
	minted map[string]bool // receipt numbers and token references allocated in-flight
}

func newStaging(ctx context.Context, e *Engine, now time.Time) *staging {
	return &staging{ctx: ctx, eng: e, now: now, staged: make(map[string]Entity), minted: make(map[string]bool)}
}

func (s *staging) newID() string { return s.eng.newID() }

func (s *staging) put(e Entity) {
	id := e.EntityID()
	if _, ok := s.staged[id]; !ok {
		s.order = append(s.order, id)
	}
	s.staged[id] = e.cloneEntity()
}

func (s *staging) get(id string) (Entity, error) {
	if e, ok := s.staged[id]; ok {
		return e.cloneEntity(), nil
	}
	return s.eng.store.Get(s.ctx, id)
}

func (s *staging) effects() []Effect {
	out := make([]Effect, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Effect{Entity: s.staged[id].cloneEntity()})
	}
	return out
}

// checkInvariants is the final guard before commit, independent of the
// per-kind rules: no staged entity may carry a negative balance or quantity.
func (s *staging) checkInvariants() error {
	for _, id := range s.order {
		switch v := s.staged[id].(type) {
		case Account:
			if v.Balance.IsNegative() {
				return fmt.Errorf("%w: account %s would go negative (%s)", ErrInsufficientFunds, v.ID, v.Balance)
			}
		case AssetHolding:
			if v.Quantity != nil && v.Quantity.IsNegative() {
				return fmt.Errorf("%w: holding %s quantity would go negative (%s)", ErrInvalidAmount, v.ID, v.Quantity)
			}
		case TrustRecord:
			if v.Balance.IsNegative() {
				return fmt.Errorf("%w: trust %s would go negative (%s)", ErrInsufficientFunds, v.ID, v.Balance)
			}
		}
	}
	return nil
}

func (s *staging) account(id string) (Account, error) {
	e, err := s.get(id)
	if err != nil {
		return Account{}, err
	}
	acc, ok := e.(Account)
	if !ok {
		return Account{}, fmt.Errorf("%w: entity %q is not an account", ErrNotFound, id)
	}
	return acc, nil
}

// activeAccount resolves an account and rejects frozen or closed ones.
func (s *staging) activeAccount(id string) (Account, error) {
	acc, err := s.account(id)
	if err != nil {
		return Account{}, err
	}
	if acc.Status != AccountActive {
		return Account{}, fmt.Errorf("%w: account %s is %s", ErrAccountNotActive, acc.ID, acc.Status)
	}
	return acc, nil
}

func (s *staging) holding(id string) (AssetHolding, error) {
	e, err := s.get(id)
	if err != nil {
		return AssetHolding{}, err
	}
	h, ok := e.(AssetHolding)
	if !ok {
		return AssetHolding{}, fmt.Errorf("%w: entity %q is not an asset holding", ErrNotFound, id)
	}
	return h, nil
}

func (s *staging) receipt(id string) (CustodyReceipt, error) {
	e, err := s.get(id)
	if err != nil {
		return CustodyReceipt{}, err
	}
	r, ok := e.(CustodyReceipt)
	if !ok {
		return CustodyReceipt{}, fmt.Errorf("%w: entity %q is not a custody receipt", ErrNotFound, id)
	}
	return r, nil
}

func (s *staging) trust(id string) (TrustRecord, error) {
	e, err := s.get(id)
	if err != nil {
		return TrustRecord{}, err
	}
	t, ok := e.(TrustRecord)
	if !ok {
		return TrustRecord{}, fmt.Errorf("%w: entity %q is not a trust record", ErrNotFound, id)
	}
	return t, nil
}

func (s *staging) token(id string) (DigitalToken, error) {
	e, err := s.get(id)
	if err != nil {
		return DigitalToken{}, err
	}
	t, ok := e.(DigitalToken)
	if !ok {
		return DigitalToken{}, fmt.Errorf("%w: entity %q is not a digital token", ErrNotFound, id)
	}
	return t, nil
}

// activeReceiptFor returns the active receipt covering a holding, staged
// writes included, or nil.
func (s *staging) activeReceiptFor(holdingID string) (*CustodyReceipt, error) {
	found, err := s.scan(func(e Entity) bool {
		r, ok := e.(CustodyReceipt)
		return ok && r.Holding == holdingID && r.Status == ReceiptActive
	})
	if err != nil || found == nil {
		return nil, err
	}
	r := found.(CustodyReceipt)
	return &r, nil
}

// liveTokenFor returns the minted token referencing a holding, staged writes
// included, or nil.
func (s *staging) liveTokenFor(holdingID string) (*DigitalToken, error) {
	found, err := s.scan(func(e Entity) bool {
		t, ok := e.(DigitalToken)
		return ok && t.Holding == holdingID && t.Status == TokenMinted
	})
	if err != nil || found == nil {
		return nil, err
	}
	t := found.(DigitalToken)
	return &t, nil
}

// scan searches the staged overlay first, then the store.
func (s *staging) scan(match func(Entity) bool) (Entity, error) {
	for _, id := range s.order {
		if match(s.staged[id]) {
			return s.staged[id].cloneEntity(), nil
		}
	}
	stored, err := s.eng.store.List(s.ctx, match)
	if err != nil {
		return nil, err
	}
	for _, e := range stored {
		// A staged write supersedes the stored version of the record.
		if _, ok := s.staged[e.EntityID()]; ok {
			continue
		}
		return e, nil
	}
	return nil, nil
}

// allocateReceiptNumber draws receipt numbers until one is unique across the
// store and the in-flight staging set. A collision triggers regeneration,
// not failure, up to a bounded retry count.
func (s *staging) allocateReceiptNumber() (string, error) {
	for i := 0; i < s.eng.receiptRetries; i++ {
		number := s.eng.receiptNumber()
		if s.minted[number] {
			continue
		}
		taken, err := s.scan(func(e Entity) bool {
			r, ok := e.(CustodyReceipt)
			return ok && r.Number == number
		})
		if err != nil {
			return "", err
		}
		if taken == nil {
			s.minted[number] = true
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: after %d attempts", ErrReceiptAllocation, s.eng.receiptRetries)
}

// allocateTokenReference draws token references with the same collision
// policy as receipt numbers.
func (s *staging) allocateTokenReference() (string, error) {
	for i := 0; i < s.eng.receiptRetries; i++ {
		ref := s.eng.tokenReference()
		if s.minted[ref] {
			continue
		}
		taken, err := s.scan(func(e Entity) bool {
			t, ok := e.(DigitalToken)
			return ok && t.Reference == ref
		})
		if err != nil {
			return "", err
		}
		if taken == nil {
			s.minted[ref] = true
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: after %d attempts", ErrReceiptAllocation, s.eng.receiptRetries)
}
