package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rosiefs/rosie/internal/event"
)

// AppendError wraps a storage-layer failure on the append path. It is the
// only error Append returns: payload encoding failures are programming
// errors and surface as such before any row is written.
type AppendError struct {
	Kind event.Kind
	Err  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append %s: %v", e.Kind, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// Append durably persists one event and returns its assigned sequence
// number. The event is committed (synchronous=FULL) before Append returns;
// no event is ever reported committed and later lost on crash.
//
// Appends are serialized by the single writer connection. Timestamps are
// recorded in UTC RFC 3339; ordering authority remains the seq column.
func (s *Store) Append(ctx context.Context, p event.Payload) (int64, error) {
	body, err := event.EncodePayload(p)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", p.Kind(), err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (ts, kind, payload) VALUES (?, ?, ?)
	`,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(p.Kind()),
		string(body),
	)
	if err != nil {
		return 0, &AppendError{Kind: p.Kind(), Err: err}
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, &AppendError{Kind: p.Kind(), Err: err}
	}
	return seq, nil
}
