package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rosiefs/rosie/internal/fault"
	"github.com/rosiefs/rosie/internal/plan"
)

// ioRetries is the per-action retry budget for transient volume errors.
const ioRetries = 2

// Executor applies and reverses finalized plans. StateDir holds the
// checkpoint journals, lock files, and the sidecar trash.
type Executor struct {
	StateDir string
	Guards   Guards
	Trash    Trash
	Logger   *slog.Logger
}

func New(stateDir string, guards Guards, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		StateDir: stateDir,
		Guards:   guards,
		Trash:    NewSidecarTrash(filepath.Join(stateDir, "trash")),
		Logger:   logger,
	}
}

// Result summarizes one apply run.
type Result struct {
	CheckpointID string
	Applied      int
	Failed       int
	Skipped      int
	Halted       bool
}

// Apply executes p under a fresh checkpoint. Guard checks and the
// already-applied check run before any mutation or journal creation, so
// a rejected plan leaves no trace. Actions run create_dir first, then
// moves, then deletes; within a group, plan order. Non-fatal per-action
// failures are journaled and execution continues; a fatal fault halts
// the run with a "halted" trailer.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) (*Result, error) {
	if err := e.Guards.check(p); err != nil {
		return nil, err
	}
	if err := e.checkNotApplied(p.PlanID); err != nil {
		return nil, err
	}

	unlock, err := e.acquireLock(p.PlanID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ckID := uuid.NewString()
	journal, err := newJournalWriter(JournalPath(e.StateDir, ckID), Header{
		Type:         recordHeader,
		CheckpointID: ckID,
		PlanID:       p.PlanID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	defer journal.close()

	res := &Result{CheckpointID: ckID}
	for _, it := range orderForApply(p.Items) {
		if err := ctx.Err(); err != nil {
			res.Halted = true
			break
		}
		rec, actErr := e.applyOne(it)
		if jerr := journal.append(rec); jerr != nil {
			return res, jerr
		}
		switch rec.Status {
		case ActionOK:
			res.Applied++
		case ActionFailed:
			res.Failed++
			e.Logger.Warn("action failed",
				slog.String("item", it.ID),
				slog.String("error", rec.Message))
			if fault.Fatal(actErr) {
				res.Halted = true
			}
		}
		if res.Halted {
			break
		}
	}

	status := StatusCompleted
	if res.Halted {
		status = StatusHalted
	}
	if err := journal.append(StatusRecord{Type: recordStatus, Status: status}); err != nil {
		return res, err
	}
	e.Logger.Info("apply finished",
		slog.String("checkpoint", ckID),
		slog.String("plan", p.PlanID),
		slog.Int("applied", res.Applied),
		slog.Int("failed", res.Failed),
		slog.Bool("halted", res.Halted))
	return res, nil
}

// applyOne performs a single action with a transient-IO retry budget and
// returns the journal record plus the terminal error if any.
func (e *Executor) applyOne(it plan.Item) (ActionRecord, error) {
	rec := ActionRecord{
		Type:   recordAction,
		ItemID: it.ID,
		Action: it.Action,
		Source: it.Source,
		Target: it.Target,
		Status: ActionOK,
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = e.perform(it, &rec)
		if err == nil {
			return rec, nil
		}
		if attempt >= ioRetries || !fault.Is(err, fault.CodeVolumeIO) || fault.Fatal(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	rec.Status = ActionFailed
	rec.Message = err.Error()
	return rec, err
}

func (e *Executor) perform(it plan.Item, rec *ActionRecord) error {
	switch it.Action {
	case plan.ActionNoOp:
		return nil
	case plan.ActionCreateDir:
		existed, err := createDir(it.Source)
		rec.DirExisted = existed
		return err
	case plan.ActionMove:
		mv, err := moveFile(it.Source, it.Target)
		rec.CrossDevice = mv.crossDevice
		rec.Fingerprint = mv.fingerprint
		return err
	case plan.ActionDelete:
		handle, err := e.Trash.Put(it.Source)
		rec.TrashHandle = handle
		return err
	default:
		return fault.New(fault.CodeGuardViolation, "unknown action "+string(it.Action))
	}
}

// orderForApply groups items create_dir, move, delete; no_ops are kept
// for the journal but mutate nothing. Within a group the plan's
// deterministic order is preserved.
func orderForApply(items []plan.Item) []plan.Item {
	rank := func(a plan.Action) int {
		switch a {
		case plan.ActionCreateDir:
			return 0
		case plan.ActionMove:
			return 1
		case plan.ActionDelete:
			return 2
		default:
			return 3
		}
	}
	out := make([]plan.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Action) < rank(out[j].Action)
	})
	return out
}

// checkNotApplied rejects a plan that already has a completed checkpoint
// without a later undo.
func (e *Executor) checkNotApplied(planID string) error {
	cks, err := ListCheckpoints(e.StateDir)
	if err != nil {
		return err
	}
	for _, ck := range cks {
		if ck.Header.PlanID == planID && ck.Status == StatusCompleted && !e.undone(ck.Header.CheckpointID) {
			return fault.New(fault.CodeApplyConflict,
				fmt.Sprintf("plan %s already applied as checkpoint %s", planID, ck.Header.CheckpointID))
		}
	}
	return nil
}

func (e *Executor) undone(checkpointID string) bool {
	_, err := os.Stat(undoMarkerPath(e.StateDir, checkpointID))
	return err == nil
}

// acquireLock takes the per-plan mutation lock. O_EXCL makes creation the
// atomic test, so two concurrent applies of the same plan cannot both win.
func (e *Executor) acquireLock(planID string) (func(), error) {
	if err := os.MkdirAll(e.StateDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.CodeVolumeIO, "create state dir", err)
	}
	path := filepath.Join(e.StateDir, planID+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fault.New(fault.CodeApplyConflict,
				fmt.Sprintf("plan %s is being applied by another process", planID))
		}
		return nil, fault.Wrap(fault.CodeVolumeIO, "create lock file", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}
