// Package executor applies a finalized plan to the real filesystem under an
// append-as-you-go checkpoint journal, and reverses applied checkpoints.
// The journal's recorded prefix is, at every instant, exactly the set of
// actions that have truly completed: each record is flushed to durable
// storage before the next action starts.
package executor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/plan"
)

// Journal record types.
const (
	recordHeader = "header"
	recordAction = "action"
	recordStatus = "status"
)

// Run statuses recorded in the journal trailer.
const (
	StatusCompleted = "completed"
	StatusHalted    = "halted"
)

// Action outcome statuses.
const (
	ActionOK     = "ok"
	ActionFailed = "failed"
)

// Header identifies a checkpoint. Written durably before any mutation.
type Header struct {
	Type         string    `json:"type"`
	CheckpointID string    `json:"checkpoint_id"`
	PlanID       string    `json:"plan_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActionRecord carries exactly the pre-state needed to invert one action.
type ActionRecord struct {
	Type   string      `json:"type"`
	ItemID string      `json:"item_id"`
	Action plan.Action `json:"action"`
	Source string      `json:"source"`
	Target string      `json:"target,omitempty"`
	Status string      `json:"status"`
	// CrossDevice marks a move done as copy-verify-delete; reversal replays
	// the same sequence with roles swapped.
	CrossDevice bool `json:"cross_device,omitempty"`
	// DirExisted marks a create_dir whose directory pre-existed; reversal
	// must then leave it alone.
	DirExisted bool `json:"dir_existed,omitempty"`
	// TrashHandle is the reversible-trash handle for a delete.
	TrashHandle string `json:"trash_handle,omitempty"`
	// Fingerprint of the moved content, for verification on undo.
	Fingerprint string `json:"fingerprint,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StatusRecord is the journal trailer.
type StatusRecord struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Checkpoint is a fully parsed journal.
type Checkpoint struct {
	Header  Header
	Actions []ActionRecord
	// Status is "" for a journal without a trailer (crashed run).
	Status string
}

// CompletedActions returns the successfully applied actions in journal order.
func (c *Checkpoint) CompletedActions() []ActionRecord {
	out := make([]ActionRecord, 0, len(c.Actions))
	for _, a := range c.Actions {
		if a.Status == ActionOK {
			out = append(out, a)
		}
	}
	return out
}

// journalWriter appends records and fsyncs after every one.
type journalWriter struct {
	f *os.File
}

func newJournalWriter(path string, header Header) (*journalWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "create checkpoint dir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "create checkpoint journal", err)
	}
	w := &journalWriter{f: f}
	if err := w.append(header); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// append writes one record followed by a newline, then fsyncs. A crash
// after append returns leaves the record durable; a crash during append
// leaves at worst a truncated final line, which the reader treats as
// not-yet-written.
func (w *journalWriter) append(rec any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.f.Write(b); err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "append journal record", err)
	}
	if err := w.f.Sync(); err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "sync journal", err)
	}
	return nil
}

func (w *journalWriter) close() error {
	return w.f.Close()
}

// ReadCheckpoint parses a journal file. A trailing partial line (crash
// mid-append) is ignored; everything before it is the completed prefix.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "open checkpoint journal", err)
	}
	defer f.Close()

	var ck Checkpoint
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
scan:
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			// Truncated or garbled line: stop at the durable prefix.
			break
		}
		switch probe.Type {
		case recordHeader:
			if !first {
				return nil, fmt.Errorf("journal %s: header after first record", path)
			}
			if err := json.Unmarshal(line, &ck.Header); err != nil {
				return nil, fmt.Errorf("journal %s: bad header: %w", path, err)
			}
		case recordAction:
			var a ActionRecord
			if err := json.Unmarshal(line, &a); err != nil {
				break scan
			}
			ck.Actions = append(ck.Actions, a)
		case recordStatus:
			var s StatusRecord
			if err := json.Unmarshal(line, &s); err == nil {
				ck.Status = s.Status
			}
		}
		first = false
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "read checkpoint journal", err)
	}
	if ck.Header.CheckpointID == "" {
		return nil, fmt.Errorf("journal %s: missing header", path)
	}
	return &ck, nil
}

// JournalPath returns the journal file path for a checkpoint id.
func JournalPath(dir, checkpointID string) string {
	return filepath.Join(dir, checkpointID+".journal")
}

// ListCheckpoints parses every journal in dir, skipping unreadable files.
func ListCheckpoints(dir string) ([]*Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "list checkpoints", err)
	}
	var out []*Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".journal" {
			continue
		}
		ck, err := ReadCheckpoint(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, ck)
	}
	return out, nil
}
