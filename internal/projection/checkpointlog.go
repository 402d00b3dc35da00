package projection

import (
	"encoding/json"
	"sort"

	"github.com/rosiefs/rosie/internal/event"
)

// CheckpointEntry is the folded view of one apply run.
type CheckpointEntry struct {
	CheckpointID string `json:"checkpoint_id"`
	PlanID       string `json:"plan_id"`
	Applied      int    `json:"applied"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Undone       bool   `json:"undone"`
}

// CheckpointLog folds ApplyStarted / ActionApplied / UndoPerformed events
// into the known-checkpoints view.
type CheckpointLog struct {
	lastSeq int64
	entries map[string]*CheckpointEntry
}

// NewCheckpointLog returns an empty checkpoint log.
func NewCheckpointLog() *CheckpointLog {
	return &CheckpointLog{entries: make(map[string]*CheckpointEntry)}
}

func (cl *CheckpointLog) Name() string   { return "checkpoint_log" }
func (cl *CheckpointLog) LastSeq() int64 { return cl.lastSeq }

func (cl *CheckpointLog) Apply(ev event.Event) error {
	defer func() { cl.lastSeq = ev.Seq }()

	switch p := ev.Payload.(type) {
	case event.ApplyStarted:
		cl.entries[p.CheckpointID] = &CheckpointEntry{
			CheckpointID: p.CheckpointID,
			PlanID:       p.PlanID,
		}
	case event.ActionApplied:
		entry := cl.entry(p.CheckpointID)
		switch p.Status {
		case "ok":
			entry.Applied++
		case "failed":
			entry.Failed++
		default:
			entry.Skipped++
		}
	case event.UndoPerformed:
		cl.entry(p.CheckpointID).Undone = true
	}
	return nil
}

// entry returns the tracked entry, creating a placeholder for events that
// arrive without a preceding ApplyStarted (possible when folding a partial
// tail).
func (cl *CheckpointLog) entry(id string) *CheckpointEntry {
	if e, ok := cl.entries[id]; ok {
		return e
	}
	e := &CheckpointEntry{CheckpointID: id}
	cl.entries[id] = e
	return e
}

// Get returns the entry for a checkpoint id.
func (cl *CheckpointLog) Get(id string) (CheckpointEntry, bool) {
	e, ok := cl.entries[id]
	if !ok {
		return CheckpointEntry{}, false
	}
	return *e, true
}

// Entries returns all entries sorted by checkpoint id.
func (cl *CheckpointLog) Entries() []CheckpointEntry {
	ids := make([]string, 0, len(cl.entries))
	for id := range cl.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]CheckpointEntry, len(ids))
	for i, id := range ids {
		out[i] = *cl.entries[id]
	}
	return out
}

type checkpointLogSnapshot struct {
	Entries []CheckpointEntry `json:"entries"`
}

func (cl *CheckpointLog) Snapshot() ([]byte, error) {
	return json.Marshal(checkpointLogSnapshot{Entries: cl.Entries()})
}

func (cl *CheckpointLog) Restore(lastSeq int64, data []byte) error {
	var snap checkpointLogSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	cl.entries = make(map[string]*CheckpointEntry, len(snap.Entries))
	for i := range snap.Entries {
		e := snap.Entries[i]
		cl.entries[e.CheckpointID] = &e
	}
	cl.lastSeq = lastSeq
	return nil
}
