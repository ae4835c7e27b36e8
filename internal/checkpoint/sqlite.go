package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cairn/internal/storage"
)

// Pruner is implemented by stores that can delete stale checkpoints in bulk.
type Pruner interface {
	// Prune deletes checkpoints last updated before cutoff. Checkpoints with
	// a pending interrupt are kept unless includePending is set.
	Prune(ctx context.Context, cutoff time.Time, includePending bool) (int, error)
}

// SQLiteStore persists checkpoints in the local SQLite database.
type SQLiteStore struct {
	db *storage.DB
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Pruner = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a store over an opened database.
func NewSQLiteStore(db *storage.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM checkpoints WHERE thread_id = ?", threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(OpLoad, threadID, err)
	}
	cp, err := decode([]byte(data))
	if err != nil {
		return nil, wrap(OpLoad, threadID, fmt.Errorf("decode: %w", err))
	}
	return cp, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, step, data, updated_at, interrupt_id)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
		   step = excluded.step,
		   data = excluded.data,
		   updated_at = excluded.updated_at,
		   interrupt_id = excluded.interrupt_id`,
		cp.ThreadID, cp.Step, string(data), updated.UnixNano(), interruptID,
	)
	return wrap(OpSave, cp.ThreadID, err)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID)
	if err != nil {
		return wrap(OpDelete, threadID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(OpDelete, threadID, err)
	}
	if n == 0 {
		return wrap(OpDelete, threadID, ErrNotFound)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT thread_id FROM checkpoints ORDER BY thread_id")
	if err != nil {
		return nil, wrap(OpList, "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(OpList, "", err)
		}
		ids = append(ids, id)
	}
	return ids, wrap(OpList, "", rows.Err())
}

// Prune implements Pruner.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time, includePending bool) (int, error) {
	query := "DELETE FROM checkpoints WHERE updated_at < ?"
	if !includePending {
		query += " AND interrupt_id = ''"
	}
	res, err := s.db.ExecContext(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, wrap(OpDelete, "", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrap(OpDelete, "", err)
}
