package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/plan"
)

func testExecutor(t *testing.T, guards Guards) *Executor {
	t.Helper()
	return New(t.TempDir(), guards, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func sealedPlan(t *testing.T, items []plan.Item) *plan.Plan {
	t.Helper()
	p := &plan.Plan{Items: items, Status: plan.StatusFinalized}
	require.NoError(t, p.Seal())
	return p
}

func TestApplyThenUndoRestoresTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "draft.txt"), "hello")
	writeFile(t, filepath.Join(root, "junk.tmp"), "scrap")

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionCreateDir, Source: filepath.Join(root, "docs")},
		{Action: plan.ActionMove, Source: filepath.Join(root, "draft.txt"), Target: filepath.Join(root, "docs", "draft.txt")},
		{Action: plan.ActionDelete, Source: filepath.Join(root, "junk.tmp")},
	})

	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Applied)
	assert.Zero(t, res.Failed)
	assert.False(t, res.Halted)

	assert.Equal(t, "hello", readFile(t, filepath.Join(root, "docs", "draft.txt")))
	_, err = os.Stat(filepath.Join(root, "draft.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "junk.tmp"))
	assert.True(t, os.IsNotExist(err))

	ures, err := e.Undo(context.Background(), res.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, 3, ures.Reversed)

	assert.Equal(t, "hello", readFile(t, filepath.Join(root, "draft.txt")))
	assert.Equal(t, "scrap", readFile(t, filepath.Join(root, "junk.tmp")))
	_, err = os.Stat(filepath.Join(root, "docs"))
	assert.True(t, os.IsNotExist(err), "empty created dir should be removed")
}

func TestGuardViolationMutatesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "secret", "key.pem"), "pk")

	e := testExecutor(t, Guards{ProtectedPaths: []string{filepath.Join(root, "secret")}})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionDelete, Source: filepath.Join(root, "secret", "key.pem")},
	})

	_, err := e.Apply(context.Background(), p)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeGuardViolation))

	assert.Equal(t, "pk", readFile(t, filepath.Join(root, "secret", "key.pem")))
	cks, err := ListCheckpoints(e.StateDir)
	require.NoError(t, err)
	assert.Empty(t, cks, "rejected plan must leave no checkpoint")
}

func TestThresholdExceeded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	e := testExecutor(t, Guards{MaxActions: 1})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionDelete, Source: filepath.Join(root, "a.txt")},
		{Action: plan.ActionDelete, Source: filepath.Join(root, "b.txt")},
	})

	_, err := e.Apply(context.Background(), p)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeThresholdExceeded))
	assert.FileExists(t, filepath.Join(root, "a.txt"))
	assert.FileExists(t, filepath.Join(root, "b.txt"))
}

func TestMaxMoveBytes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.bin"), "0123456789")

	e := testExecutor(t, Guards{MaxMoveBytes: 5})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: filepath.Join(root, "big.bin"), Target: filepath.Join(root, "out", "big.bin"), Size: 10},
	})

	_, err := e.Apply(context.Background(), p)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeThresholdExceeded))
}

func TestConcurrentApplyRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: filepath.Join(root, "a.txt"), Target: filepath.Join(root, "b.txt")},
	})

	// Simulate another process holding the lock.
	require.NoError(t, os.MkdirAll(e.StateDir, 0o755))
	lock := filepath.Join(e.StateDir, p.PlanID+".lock")
	require.NoError(t, os.WriteFile(lock, []byte("999\n"), 0o644))

	_, err := e.Apply(context.Background(), p)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeApplyConflict))
	assert.FileExists(t, filepath.Join(root, "a.txt"))
}

func TestReapplyCompletedPlanRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: filepath.Join(root, "a.txt"), Target: filepath.Join(root, "b.txt")},
	})

	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)

	_, err = e.Apply(context.Background(), p)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeApplyConflict))

	// After undo the plan may be applied again.
	_, err = e.Undo(context.Background(), res.CheckpointID)
	require.NoError(t, err)
	_, err = e.Apply(context.Background(), p)
	require.NoError(t, err)
}

func TestApplyContinuesPastNonFatalFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: filepath.Join(root, "missing.txt"), Target: filepath.Join(root, "out", "missing.txt")},
		{Action: plan.ActionMove, Source: filepath.Join(root, "b.txt"), Target: filepath.Join(root, "out", "b.txt")},
	})

	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Halted)
	assert.Equal(t, "b", readFile(t, filepath.Join(root, "out", "b.txt")))
}

func TestUndoIdempotentAfterDisturbance(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: filepath.Join(root, "a.txt"), Target: filepath.Join(root, "b.txt")},
	})
	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)

	// User already moved it back by hand.
	require.NoError(t, os.Rename(filepath.Join(root, "b.txt"), filepath.Join(root, "a.txt")))

	ures, err := e.Undo(context.Background(), res.CheckpointID)
	require.NoError(t, err)
	assert.Zero(t, ures.Reversed)
	assert.Equal(t, 1, ures.Skipped)
	assert.Equal(t, "a", readFile(t, filepath.Join(root, "a.txt")))
}

func TestUndoCreatedDirKeptWhenNonEmpty(t *testing.T) {
	root := t.TempDir()
	e := testExecutor(t, Guards{})
	dir := filepath.Join(root, "docs")
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionCreateDir, Source: dir},
	})
	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "new.txt"), "kept")

	_, err = e.Undo(context.Background(), res.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, "kept", readFile(t, filepath.Join(dir, "new.txt")))
}

func TestUndoCrashedJournalPrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "a.txt"), "a")

	e := testExecutor(t, Guards{})

	// A journal that recorded one completed move, then crashed: no
	// trailer and a torn final line.
	ckID := "0b7a4f5e-crash"
	header, _ := json.Marshal(Header{Type: recordHeader, CheckpointID: ckID, PlanID: "p1"})
	action, _ := json.Marshal(ActionRecord{
		Type:   recordAction,
		ItemID: "item1",
		Action: plan.ActionMove,
		Source: filepath.Join(root, "a.txt"),
		Target: filepath.Join(root, "docs", "a.txt"),
		Status: ActionOK,
	})
	body := string(header) + "\n" + string(action) + "\n" + `{"type":"action","item`
	require.NoError(t, os.MkdirAll(e.StateDir, 0o755))
	require.NoError(t, os.WriteFile(JournalPath(e.StateDir, ckID), []byte(body), 0o644))

	ures, err := e.Undo(context.Background(), ckID)
	require.NoError(t, err)
	assert.Equal(t, 1, ures.Reversed)
	assert.Equal(t, "a", readFile(t, filepath.Join(root, "a.txt")))
}

func TestJournalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := JournalPath(dir, "ck1")
	w, err := newJournalWriter(path, Header{Type: recordHeader, CheckpointID: "ck1", PlanID: "p1"})
	require.NoError(t, err)
	require.NoError(t, w.append(ActionRecord{Type: recordAction, ItemID: "i1", Action: plan.ActionNoOp, Status: ActionOK}))
	require.NoError(t, w.append(StatusRecord{Type: recordStatus, Status: StatusCompleted}))
	require.NoError(t, w.close())

	ck, err := ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, "ck1", ck.Header.CheckpointID)
	assert.Equal(t, "p1", ck.Header.PlanID)
	assert.Len(t, ck.Actions, 1)
	assert.Equal(t, StatusCompleted, ck.Status)

	// Creating the same journal twice must fail.
	_, err = newJournalWriter(path, Header{Type: recordHeader, CheckpointID: "ck1"})
	require.Error(t, err)
}

func TestSidecarTrashRestore(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.txt")
	writeFile(t, path, "content")

	tr := NewSidecarTrash(filepath.Join(root, ".trash"))
	handle, err := tr.Put(path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, tr.Restore(handle))
	assert.Equal(t, "content", readFile(t, path))

	// Restoring again is a no-op because the original is back.
	require.NoError(t, tr.Restore(handle))
}

func TestMoveFileRefusesOccupiedTarget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	_, err := moveFile(filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt"))
	require.Error(t, err)
	assert.Equal(t, "a", readFile(t, filepath.Join(root, "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(root, "b.txt")))
}

func TestCopyVerifyDelete(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.bin")
	dst := filepath.Join(root, "dst.bin")
	writeFile(t, src, "payload")

	fp, err := copyVerifyDelete(src, dst)
	require.NoError(t, err)
	assert.NotEmpty(t, fp)
	assert.Equal(t, "payload", readFile(t, dst))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestCrossDeviceVerifyFailureIsNonFatal(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "cross.bin")
	other := filepath.Join(root, "b.txt")
	writeFile(t, src, "payload")
	writeFile(t, other, "b")

	// Force the copy fallback for cross.bin and corrupt the copy so
	// verification fails.
	origRename, origCopy := renameFn, copyFn
	t.Cleanup(func() { renameFn = origRename; copyFn = origCopy })
	renameFn = func(oldpath, newpath string) error {
		if filepath.Base(oldpath) == "cross.bin" {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}
	copyFn = func(src, dst string) error {
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.WriteFile(dst, []byte("garbled"), 0o644)
	}

	e := testExecutor(t, Guards{})
	p := sealedPlan(t, []plan.Item{
		{Action: plan.ActionMove, Source: src, Target: filepath.Join(root, "out", "cross.bin")},
		{Action: plan.ActionMove, Source: other, Target: filepath.Join(root, "out", "b.txt")},
	})
	res, err := e.Apply(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Halted)

	// Source intact, partial destination removed, later items still applied.
	assert.Equal(t, "payload", readFile(t, src))
	_, err = os.Stat(filepath.Join(root, "out", "cross.bin"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "b", readFile(t, filepath.Join(root, "out", "b.txt")))

	ck, err := ReadCheckpoint(JournalPath(e.StateDir, res.CheckpointID))
	require.NoError(t, err)
	var status string
	for _, a := range ck.Actions {
		if a.Source == src {
			status = a.Status
		}
	}
	assert.Equal(t, ActionFailed, status)
}
