package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rosiefs/rosie/internal/canon"
	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/plan"
)

// UndoResult summarizes one undo run.
type UndoResult struct {
	CheckpointID string
	Reversed     int
	Skipped      int
}

// Undo reverses a checkpoint's completed actions in strict reverse
// journal order. Each reversal first checks whether the forward effect
// is still in place; an action whose effect has since been disturbed is
// skipped rather than failing the run, so undo stays idempotent and
// best effort. A halted or crashed journal is undoable too: only its
// recorded completed prefix is reversed.
func (e *Executor) Undo(ctx context.Context, checkpointID string) (*UndoResult, error) {
	ck, err := ReadCheckpoint(JournalPath(e.StateDir, checkpointID))
	if err != nil {
		return nil, err
	}
	unlock, err := e.acquireLock(ck.Header.PlanID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &UndoResult{CheckpointID: checkpointID}
	done := ck.CompletedActions()
	for i := len(done) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		reversed, err := e.reverseOne(done[i])
		if err != nil {
			e.Logger.Warn("undo step failed",
				slog.String("item", done[i].ItemID),
				slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		if reversed {
			res.Reversed++
		} else {
			res.Skipped++
		}
	}
	if err := e.markUndone(checkpointID); err != nil {
		return res, err
	}
	e.Logger.Info("undo finished",
		slog.String("checkpoint", checkpointID),
		slog.Int("reversed", res.Reversed),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// reverseOne inverts one applied action. Returns false when the forward
// effect was no longer present and nothing was changed.
func (e *Executor) reverseOne(a ActionRecord) (bool, error) {
	switch a.Action {
	case plan.ActionNoOp:
		return false, nil
	case plan.ActionCreateDir:
		return e.reverseCreateDir(a)
	case plan.ActionMove:
		return e.reverseMove(a)
	case plan.ActionDelete:
		if a.TrashHandle == "" {
			return false, nil
		}
		if err := e.Trash.Restore(a.TrashHandle); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fault.New(fault.CodeGuardViolation, "unknown action "+string(a.Action))
	}
}

// reverseCreateDir removes a created directory only when this run created
// it and it is still empty. Directories that gained content stay.
func (e *Executor) reverseCreateDir(a ActionRecord) (bool, error) {
	if a.DirExisted {
		return false, nil
	}
	entries, err := os.ReadDir(a.Source)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fault.Wrap(fault.CodeVolumeIO, "read dir "+a.Source, err)
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(a.Source); err != nil {
		return false, fault.Wrap(fault.CodeVolumeIO, "remove dir "+a.Source, err)
	}
	return true, nil
}

// reverseMove moves target back to source. Skips when the target is gone
// or the source has since been reoccupied. A cross-device forward move
// verifies the restored content against the recorded fingerprint.
func (e *Executor) reverseMove(a ActionRecord) (bool, error) {
	if _, err := os.Lstat(a.Target); os.IsNotExist(err) {
		return false, nil
	}
	if _, err := os.Lstat(a.Source); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.Source), 0o755); err != nil {
		return false, fault.Wrap(fault.CodeVolumeIO, "create source dir", err)
	}
	if _, err := moveFile(a.Target, a.Source); err != nil {
		return false, err
	}
	if a.CrossDevice && a.Fingerprint != "" {
		if err := verifyFingerprint(a.Source, a.Fingerprint); err != nil {
			return true, err
		}
	}
	return true, nil
}

func verifyFingerprint(path, want string) error {
	got, err := canon.FingerprintFile(path)
	if err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "fingerprint "+path, err)
	}
	if got != want {
		return fault.New(fault.CodeChecksumMismatch,
			fmt.Sprintf("restored %s does not match recorded content", path))
	}
	return nil
}

func undoMarkerPath(dir, checkpointID string) string {
	return filepath.Join(dir, checkpointID+".undone")
}

func (e *Executor) markUndone(checkpointID string) error {
	f, err := os.OpenFile(undoMarkerPath(e.StateDir, checkpointID), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fault.Wrap(fault.CodeVolumeIO, "write undo marker", err)
	}
	return f.Close()
}
