package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the table PostgresStore expects.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS cairn_checkpoints (
    thread_id    TEXT PRIMARY KEY,
    step         INTEGER NOT NULL DEFAULT 0,
    interrupt_id TEXT NOT NULL DEFAULT '',
    data         JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cairn_checkpoints_updated_at ON cairn_checkpoints(updated_at);
`

// PostgresStore persists checkpoints in PostgreSQL and can be shared by
// several processes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Pruner = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM cairn_checkpoints WHERE thread_id = $1`, threadID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(OpLoad, threadID, err)
	}
	cp, err := decode(data)
	if err != nil {
		return nil, wrap(OpLoad, threadID, fmt.Errorf("decode: %w", err))
	}
	return cp, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return wrap(OpSave, threadOf(cp), err)
	}
	data, err := encode(cp)
	if err != nil {
		return wrap(OpSave, cp.ThreadID, fmt.Errorf("encode: %w", err))
	}
	interruptID := ""
	if cp.PendingInterrupt != nil {
		interruptID = cp.PendingInterrupt.ID
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO cairn_checkpoints (thread_id, step, interrupt_id, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (thread_id) DO UPDATE SET
		   step = EXCLUDED.step,
		   interrupt_id = EXCLUDED.interrupt_id,
		   data = EXCLUDED.data,
		   updated_at = EXCLUDED.updated_at`,
		cp.ThreadID, cp.Step, interruptID, data, updated,
	)
	return wrap(OpSave, cp.ThreadID, err)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cairn_checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return wrap(OpDelete, threadID, err)
	}
	if tag.RowsAffected() == 0 {
		return wrap(OpDelete, threadID, ErrNotFound)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT thread_id FROM cairn_checkpoints ORDER BY thread_id`)
	if err != nil {
		return nil, wrap(OpList, "", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, wrap(OpList, "", err)
}

// Prune implements Pruner.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time, includePending bool) (int, error) {
	query := `DELETE FROM cairn_checkpoints WHERE updated_at < $1`
	if !includePending {
		query += ` AND interrupt_id = ''`
	}
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, wrap(OpDelete, "", err)
	}
	return int(tag.RowsAffected()), nil
}
