package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/executor"
	"github.com/rosiefs/rosie/internal/pipeline"
	"github.com/rosiefs/rosie/internal/plan"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the finalized plan under a checkpoint",
		Long: `Apply executes the approved items of the finalized plan against the
filesystem. Every action is journaled before the next one starts, so an
interrupted run can always be undone. Guard limits from the config are
checked before anything is touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, rootOpts)
		},
	}
	return cmd
}

func runApply(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmdContext(cmd)
	logger := setupLogging(opts)
	out := formatter(cmd, opts)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	sess, cleanup, err := openSession(ctx, cfg, pipeline.Capabilities{}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	current := sess.CurrentPlan()
	if current == nil {
		return NewExitError(ExitCommandError, "no plan proposed yet; run scan first")
	}
	finalized := sess.View().FinalizedPlanID()
	if finalized == "" {
		return NewExitError(ExitCommandError, "no finalized plan; run finalize first")
	}
	if finalized != current.PlanID {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("finalized plan %s is stale; current proposal is %s", finalized, current.PlanID))
	}

	approved := make(map[string]bool)
	for _, id := range sess.View().ApprovedItems(current.PlanID) {
		approved[id] = true
	}
	runPlan, skipped := approvedSubset(current, approved)

	exec := newExecutor(cfg, logger)
	res, err := exec.Apply(ctx, runPlan)
	if err != nil {
		out.Fail(err)
		return WrapExitError(ExitFailure, "apply", err)
	}

	if recErr := recordApply(ctx, sess, exec, res, skipped); recErr != nil {
		return WrapExitError(ExitFailure, "record apply events", recErr)
	}
	if err := sess.SaveSnapshots(ctx); err != nil {
		return WrapExitError(ExitFailure, "save snapshots", err)
	}

	summary := fmt.Sprintf("checkpoint %s: %d applied, %d failed, %d skipped",
		res.CheckpointID, res.Applied, res.Failed, len(skipped))
	if res.Halted {
		summary += " (halted)"
	}
	if opts.Format == "json" {
		return out.Success(map[string]interface{}{
			"checkpoint_id": res.CheckpointID,
			"applied":       res.Applied,
			"failed":        res.Failed,
			"skipped":       len(skipped),
			"halted":        res.Halted,
		})
	}
	return out.Success(summary)
}

// approvedSubset returns the plan restricted to approved items, plus the
// ids of the items left out.
func approvedSubset(p *plan.Plan, approved map[string]bool) (*plan.Plan, []string) {
	sub := &plan.Plan{PlanID: p.PlanID, Status: p.Status, Shaping: p.Shaping}
	var skipped []string
	for _, it := range p.Items {
		if approved[it.ID] {
			sub.Items = append(sub.Items, it)
		} else {
			skipped = append(skipped, it.ID)
		}
	}
	return sub, skipped
}

// recordApply mirrors the checkpoint journal into the event log.
func recordApply(ctx context.Context, sess *pipeline.Session, exec *executor.Executor, res *executor.Result, skipped []string) error {
	ck, err := executor.ReadCheckpoint(executor.JournalPath(exec.StateDir, res.CheckpointID))
	if err != nil {
		return err
	}
	if err := sess.Append(ctx, event.ApplyStarted{
		PlanID:       ck.Header.PlanID,
		CheckpointID: ck.Header.CheckpointID,
	}); err != nil {
		return err
	}
	for _, a := range ck.Actions {
		if err := sess.Append(ctx, event.ActionApplied{
			CheckpointID: ck.Header.CheckpointID,
			ItemID:       a.ItemID,
			Status:       a.Status,
			Message:      a.Message,
		}); err != nil {
			return err
		}
	}
	for _, id := range skipped {
		if err := sess.Append(ctx, event.ActionApplied{
			CheckpointID: ck.Header.CheckpointID,
			ItemID:       id,
			Status:       "skipped",
			Message:      "not approved",
		}); err != nil {
			return err
		}
	}
	return nil
}
