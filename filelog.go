package ledger

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FileLog is a TransactionLog persisted as an append-only JSONL file, one
// record per line in applied order. Reads are served from an in-memory index
// rebuilt from the file on open.
type FileLog struct {
	mu   sync.Mutex
	mem  *MemoryLog
	file *os.File
}

// OpenFileLog opens (or creates) the log file at path and rebuilds the
// in-memory index from its records.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open transaction log %q: %w", path, err)
	}
	txs, err := DecodeTransactions(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not load transaction log %q: %w", path, err)
	}
	mem := NewMemoryLog()
	for _, tx := range txs {
		if err := mem.Append(context.Background(), tx); err != nil {
			f.Close()
			return nil, fmt.Errorf("corrupt transaction log %q: %w", path, err)
		}
	}
	return &FileLog{mem: mem, file: f}, nil
}

// Append implements TransactionLog. The record is durable once Append
// returns: the line is written and synced before the index is updated.
func (l *FileLog) Append(ctx context.Context, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.mem.ByKey(ctx, tx.Key); err == nil {
		return fmt.Errorf("%w: transaction key %q", ErrAlreadyExists, tx.Key)
	}
	if err := EncodeTransaction(l.file, tx); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("could not sync transaction log: %w", err)
	}
	return l.mem.Append(ctx, tx)
}

// ByKey implements TransactionLog.
func (l *FileLog) ByKey(ctx context.Context, key string) (Transaction, error) {
	return l.mem.ByKey(ctx, key)
}

// ByEntity implements TransactionLog.
func (l *FileLog) ByEntity(ctx context.Context, id string) ([]Transaction, error) {
	return l.mem.ByEntity(ctx, id)
}

// All implements TransactionLog.
func (l *FileLog) All(ctx context.Context) ([]Transaction, error) {
	return l.mem.All(ctx)
}

// Close closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
