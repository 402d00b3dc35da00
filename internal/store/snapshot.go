package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSnapshot persists a projection's serialized state at lastSeq.
// Snapshots are an optimization only: replacing one is safe because any
// snapshot plus tail replay converges to the same state as a full replay.
func (s *Store) SaveSnapshot(ctx context.Context, projection string, lastSeq int64, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (projection, last_seq, state)
		VALUES (?, ?, ?)
		ON CONFLICT(projection) DO UPDATE SET last_seq = excluded.last_seq, state = excluded.state
	`, projection, lastSeq, string(state))
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", projection, err)
	}
	return nil
}

// LoadSnapshot returns a projection's snapshot, or ok=false when none exists.
func (s *Store) LoadSnapshot(ctx context.Context, projection string) (lastSeq int64, state []byte, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `
		SELECT last_seq, state FROM snapshots WHERE projection = ?
	`, projection).Scan(&lastSeq, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("load snapshot %s: %w", projection, err)
	}
	return lastSeq, []byte(raw), true, nil
}

// DropSnapshot discards a projection's snapshot, forcing full replay on the
// next rebuild. Used by full invalidation.
func (s *Store) DropSnapshot(ctx context.Context, projection string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE projection = ?`, projection); err != nil {
		return fmt.Errorf("drop snapshot %s: %w", projection, err)
	}
	return nil
}
