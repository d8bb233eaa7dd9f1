package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianbank/ledger"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Log implements ledger.TransactionLog over PostgreSQL. Records are
// append-only; the serial sequence is the applied order.
type Log struct {
	pool *pgxpool.Pool
}

// NewLog creates a transaction log over a connection pool.
func NewLog(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

// Append implements ledger.TransactionLog.
func (l *Log) Append(ctx context.Context, tx ledger.Transaction) error {
	if tx.Key == "" {
		return fmt.Errorf("%w: transaction without idempotency key", ledger.ErrInvalidRequest)
	}
	record, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %q: %w", tx.ID, err)
	}

	dbtx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer dbtx.Rollback(ctx)

	var seq int64
	err = dbtx.QueryRow(ctx,
		"INSERT INTO ledger_transactions (id, key, record) VALUES ($1, $2, $3) RETURNING seq",
		tx.ID, tx.Key, record).Scan(&seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: transaction key %q", ledger.ErrAlreadyExists, tx.Key)
		}
		return fmt.Errorf("failed to append transaction %q: %w", tx.Key, err)
	}
	for _, id := range tx.EntityIDs() {
		if _, err := dbtx.Exec(ctx,
			"INSERT INTO ledger_transaction_entities (tx_seq, entity_id) VALUES ($1, $2)", seq, id); err != nil {
			return fmt.Errorf("failed to index transaction %q: %w", tx.Key, err)
		}
	}
	return dbtx.Commit(ctx)
}

// ByKey implements ledger.TransactionLog.
func (l *Log) ByKey(ctx context.Context, key string) (ledger.Transaction, error) {
	var record []byte
	err := l.pool.QueryRow(ctx, "SELECT record FROM ledger_transactions WHERE key = $1", key).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction key %q", ledger.ErrNotFound, key)
	}
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to read transaction %q: %w", key, err)
	}
	var tx ledger.Transaction
	if err := json.Unmarshal(record, &tx); err != nil {
		return ledger.Transaction{}, fmt.Errorf("corrupt transaction record %q: %w", key, err)
	}
	return tx, nil
}

// ByEntity implements ledger.TransactionLog.
func (l *Log) ByEntity(ctx context.Context, id string) ([]ledger.Transaction, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT t.record FROM ledger_transactions t
		 JOIN ledger_transaction_entities te ON te.tx_seq = t.seq
		 WHERE te.entity_id = $1
		 ORDER BY t.seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of %q: %w", id, err)
	}
	return scanTransactions(rows)
}

// All implements ledger.TransactionLog.
func (l *Log) All(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := l.pool.Query(ctx, "SELECT record FROM ledger_transactions ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var tx ledger.Transaction
		if err := json.Unmarshal(record, &tx); err != nil {
			return nil, fmt.Errorf("corrupt transaction record: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
