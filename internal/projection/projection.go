// Package projection implements the deterministic folds over the event log:
// file index, embedding cache, plan view, and checkpoint log. Every
// projection's Apply is a pure function of (state, event); replaying an
// identical event sequence from empty state reproduces bit-identical state,
// and a snapshot plus tail replay converges to the same state as a full
// replay.
package projection

import (
	"context"
	"fmt"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/store"
)

// Projection is a named deterministic fold. Apply must be pure and
// sequential: callers never feed it events out of order or concurrently.
type Projection interface {
	// Name identifies the projection (and its snapshot slot).
	Name() string
	// Apply folds one event into the state.
	Apply(ev event.Event) error
	// LastSeq returns the seq of the last folded event (0 if none).
	LastSeq() int64
	// Snapshot serializes the state for resume.
	Snapshot() ([]byte, error)
	// Restore replaces the state from a snapshot taken at lastSeq.
	Restore(lastSeq int64, data []byte) error
}

// Replay feeds every stored event after the projection's current position
// into it, in seq order. Returns the last applied seq.
func Replay(ctx context.Context, s *store.Store, p Projection) (int64, error) {
	events, err := s.Read(ctx, p.LastSeq())
	if err != nil {
		return p.LastSeq(), fmt.Errorf("replay %s: %w", p.Name(), err)
	}
	for _, ev := range events {
		if err := p.Apply(ev); err != nil {
			return p.LastSeq(), fmt.Errorf("replay %s at seq %d: %w", p.Name(), ev.Seq, err)
		}
	}
	return p.LastSeq(), nil
}

// Resume restores the projection from its persisted snapshot when one
// exists, then replays the tail. Falls back to full replay when no snapshot
// is present. Both paths converge to identical state.
func Resume(ctx context.Context, s *store.Store, p Projection) error {
	lastSeq, state, ok, err := s.LoadSnapshot(ctx, p.Name())
	if err != nil {
		return err
	}
	if ok {
		if err := p.Restore(lastSeq, state); err != nil {
			return fmt.Errorf("restore %s snapshot: %w", p.Name(), err)
		}
	}
	_, err = Replay(ctx, s, p)
	return err
}

// Checkpoint persists the projection's current state as its snapshot.
func Checkpoint(ctx context.Context, s *store.Store, p Projection) error {
	state, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", p.Name(), err)
	}
	return s.SaveSnapshot(ctx, p.Name(), p.LastSeq(), state)
}
