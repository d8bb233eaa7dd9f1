// Package pgstore persists the entity store and the transaction log in
// PostgreSQL. Entities and transaction records are stored as JSONB, keyed by
// id; the engine remains the only writer, so no SQL-level constraint beyond
// key uniqueness is needed.
package pgstore

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// NewConnection opens a pool against DATABASE_URL (or the url argument when
// non-empty) and ensures the schema exists.
func NewConnection(ctx context.Context, url string) (*pgxpool.Pool, error) {
	// Load environment variables from a .env file when present.
	_ = godotenv.Load()
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the ledger tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const schema = `
CREATE TABLE IF NOT EXISTS ledger_entities (
	id     TEXT PRIMARY KEY,
	kind   TEXT NOT NULL,
	record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_transactions (
	seq    BIGSERIAL PRIMARY KEY,
	id     TEXT NOT NULL,
	key    TEXT NOT NULL UNIQUE,
	record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_transaction_entities (
	tx_seq    BIGINT NOT NULL REFERENCES ledger_transactions (seq),
	entity_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_transaction_entities_entity_idx
	ON ledger_transaction_entities (entity_id, tx_seq);
`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}
