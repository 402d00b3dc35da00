package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/pipeline"
)

// ApproveOptions holds flags for the approve command.
type ApproveOptions struct {
	*RootOptions
	All bool
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApproveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "approve [item-id...]",
		Short: "Approve items of the proposed plan",
		Long: `Approve records approval for specific plan items, or the whole plan
with --all. Only approved items survive finalization.

Example:
  rosie approve --all
  rosie approve 4b8f... 9c1d...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "approve every item in the plan")

	return cmd
}

func runApprove(cmd *cobra.Command, opts *ApproveOptions, args []string) error {
	ctx := cmdContext(cmd)
	logger := setupLogging(opts.RootOptions)
	out := formatter(cmd, opts.RootOptions)

	if !opts.All && len(args) == 0 {
		return NewExitError(ExitCommandError, "nothing to approve: pass item ids or --all")
	}

	cfg, err := loadConfig(opts.RootOptions)
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

	ids := args
	if opts.All {
		ids = make([]string, len(current.Items))
		for i, it := range current.Items {
			ids[i] = it.ID
		}
	}
	for _, id := range ids {
		if _, ok := current.Item(id); !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown item id %s", id))
		}
	}

	if err := sess.Append(ctx, event.UserApproved{PlanID: current.PlanID, ItemIDs: ids}); err != nil {
		return WrapExitError(ExitFailure, "record approval", err)
	}
	return out.Success(fmt.Sprintf("approved %d items of plan %s", len(ids), current.PlanID))
}
