package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rosiefs/rosie/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"events", "snapshots"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/events.db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestAppend_AssignsIncreasingSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := s.Append(ctx, event.PlanProposed{PlanID: "p", ItemIDs: nil})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		if seq <= last {
			t.Errorf("seq %d not strictly increasing after %d", seq, last)
		}
		last = seq
	}
}

func TestRead_RoundTripsPayloads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := event.RuleMatched{
		Path: "/data/a.log", RuleID: "junk-logs", Action: "delete",
		Reason: "rule:junk-logs", Confidence: 8000,
	}
	if _, err := s.Append(ctx, in); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	events, err := s.Read(ctx, 0)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got, ok := events[0].Payload.(event.RuleMatched)
	if !ok {
		t.Fatalf("payload type %T, want RuleMatched", events[0].Payload)
	}
	if got != in {
		t.Errorf("payload changed in round trip: %+v != %+v", got, in)
	}
}

func TestRead_FromSeqIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq1, _ := s.Append(ctx, event.PlanProposed{PlanID: "p1"})
	if _, err := s.Append(ctx, event.PlanProposed{PlanID: "p2"}); err != nil {
		t.Fatal(err)
	}

	events, err := s.Read(ctx, seq1)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after seq %d, want 1", len(events), seq1)
	}
	if events[0].Payload.(event.PlanProposed).PlanID != "p2" {
		t.Error("wrong event returned for tail read")
	}
}

func TestRead_EmptyLogReturnsEmptySlice(t *testing.T) {
	s := openTestStore(t)

	events, err := s.Read(context.Background(), 0)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if events == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestLastSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSeq(ctx)
	if err != nil || seq != 0 {
		t.Fatalf("LastSeq() on empty log = %d, %v; want 0, nil", seq, err)
	}

	want, _ := s.Append(ctx, event.PlanProposed{PlanID: "p"})
	seq, err = s.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != want {
		t.Errorf("LastSeq() = %d, want %d", seq, want)
	}
}

func TestSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Append(ctx, event.ApplyStarted{PlanID: "p", CheckpointID: "ck"}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	events, err := s2.Read(ctx, 0)
	if err != nil {
		t.Fatalf("Read() after reopen failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind() != event.KindApplyStarted {
		t.Errorf("log not durable across reopen: %+v", events)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "file_index", 42, []byte(`{"entries":{}}`)); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	seq, state, ok, err := s.LoadSnapshot(ctx, "file_index")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if !ok || seq != 42 || string(state) != `{"entries":{}}` {
		t.Errorf("snapshot round trip: seq=%d ok=%v state=%s", seq, ok, state)
	}

	// Overwrite is allowed; snapshots are disposable.
	if err := s.SaveSnapshot(ctx, "file_index", 43, []byte(`{}`)); err != nil {
		t.Fatalf("SaveSnapshot() overwrite failed: %v", err)
	}
	seq, _, _, _ = s.LoadSnapshot(ctx, "file_index")
	if seq != 43 {
		t.Errorf("snapshot not replaced: seq=%d", seq)
	}

	if err := s.DropSnapshot(ctx, "file_index"); err != nil {
		t.Fatalf("DropSnapshot() failed: %v", err)
	}
	_, _, ok, _ = s.LoadSnapshot(ctx, "file_index")
	if ok {
		t.Error("snapshot still present after drop")
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	s := openTestStore(t)

	_, _, ok, err := s.LoadSnapshot(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if ok {
		t.Error("missing snapshot reported present")
	}
}
