package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/pipeline"
)

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Finalize the proposed plan for apply",
		Long: `Finalize marks the current proposed plan as the one plan eligible for
apply, carrying the approved item set. Unapproved items are skipped
during apply.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFinalize(cmd, rootOpts)
		},
	}
	return cmd
}

func runFinalize(cmd *cobra.Command, opts *RootOptions) error {
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
	approved := sess.View().ApprovedItems(current.PlanID)
	if len(approved) == 0 {
		return NewExitError(ExitCommandError, "no approved items; run approve first")
	}

	ev := event.PlanFinalized{PlanID: current.PlanID, ApprovedItemIDs: approved}
	if err := sess.Append(ctx, ev); err != nil {
		return WrapExitError(ExitFailure, "record finalization", err)
	}
	return out.Success(fmt.Sprintf("finalized plan %s with %d approved items", current.PlanID, len(approved)))
}
