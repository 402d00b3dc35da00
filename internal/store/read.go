package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rosiefs/rosie/internal/event"
)

// Read returns all events with seq > fromSeq in ascending seq order.
// Pass 0 to read the full log. Readers run against the WAL and never
// observe a partially written event.
//
// Returns an empty slice (not nil) if no events match.
func (s *Store) Read(ctx context.Context, fromSeq int64) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, kind, payload
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
	`, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var (
			seq        int64
			ts         string
			kind, body string
		)
		if err := rows.Scan(&seq, &ts, &kind, &body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		stamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("event %d: bad timestamp %q: %w", seq, ts, err)
		}
		payload, err := event.DecodePayload(event.Kind(kind), []byte(body))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}

		events = append(events, event.Event{Seq: seq, Timestamp: stamp, Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// LastSeq returns the highest assigned sequence number, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
