package ledger

import (
	"context"
	"fmt"
	"sync"
)

// TransactionLog is the append-only, ordered record of decided transactions.
// It is the source of truth for idempotency lookups, audit queries and
// replay. Implementations never rewrite an appended record.
type TransactionLog interface {
	// Append records a decided transaction. Appending a second record
	// with an idempotency key already present fails with ErrAlreadyExists.
	Append(ctx context.Context, tx Transaction) error
	// ByKey returns the transaction recorded under the idempotency key,
	// or an error wrapping ErrNotFound.
	ByKey(ctx context.Context, key string) (Transaction, error)
	// ByEntity returns, in applied order, every transaction that touched
	// the entity.
	ByEntity(ctx context.Context, id string) ([]Transaction, error)
	// All returns every recorded transaction in applied order.
	All(ctx context.Context) ([]Transaction, error)
}

// MemoryLog is the in-memory TransactionLog used in tests and by the CLI.
type MemoryLog struct {
	mu       sync.RWMutex
	records  []Transaction
	byKey    map[string]int
	byEntity map[string][]int
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byKey: make(map[string]int), byEntity: make(map[string][]int)}
}

// Append implements TransactionLog.
func (l *MemoryLog) Append(_ context.Context, tx Transaction) error {
	if tx.Key == "" {
		return fmt.Errorf("%w: transaction without idempotency key", ErrInvalidRequest)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKey[tx.Key]; ok {
		return fmt.Errorf("%w: transaction key %q", ErrAlreadyExists, tx.Key)
	}
	i := len(l.records)
	l.records = append(l.records, cloneTransaction(tx))
	l.byKey[tx.Key] = i
	for _, id := range tx.EntityIDs() {
		l.byEntity[id] = append(l.byEntity[id], i)
	}
	return nil
}

// ByKey implements TransactionLog.
func (l *MemoryLog) ByKey(_ context.Context, key string) (Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byKey[key]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: transaction key %q", ErrNotFound, key)
	}
	return cloneTransaction(l.records[i]), nil
}

// ByEntity implements TransactionLog.
func (l *MemoryLog) ByEntity(_ context.Context, id string) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	indexes := l.byEntity[id]
	out := make([]Transaction, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, cloneTransaction(l.records[i]))
	}
	return out, nil
}

// All implements TransactionLog.
func (l *MemoryLog) All(_ context.Context) ([]Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transaction, 0, len(l.records))
	for _, tx := range l.records {
		out = append(out, cloneTransaction(tx))
	}
	return out, nil
}

func cloneTransaction(tx Transaction) Transaction {
	if tx.AppliedAt != nil {
		applied := *tx.AppliedAt
		tx.AppliedAt = &applied
	}
	tx.Touched = append([]string(nil), tx.Touched...)
	if tx.Effects != nil {
		effects := make([]Effect, len(tx.Effects))
		for i, e := range tx.Effects {
			effects[i] = Effect{Entity: e.Entity.cloneEntity()}
		}
		tx.Effects = effects
	}
	return tx
}

// Replay reapplies the committed transactions of a log, in recorded order,
// onto a store. Replaying onto an empty store reproduces the exact entity
// state the log was built against.
func Replay(ctx context.Context, log TransactionLog, store EntityStore) error {
	records, err := log.All(ctx)
	if err != nil {
		return fmt.Errorf("could not read transaction log: %w", err)
	}
	for _, tx := range records {
		if tx.Status != StatusCommitted || len(tx.Effects) == 0 {
			continue
		}
		entities := make([]Entity, len(tx.Effects))
		for i, e := range tx.Effects {
			entities[i] = e.Entity
		}
		if err := store.Upsert(ctx, entities...); err != nil {
			return fmt.Errorf("replay of %s (%s): %w", tx.Key, tx.Kind, err)
		}
	}
	return nil
}
