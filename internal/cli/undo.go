package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/pipeline"
)

// UndoOptions holds flags for the undo command.
type UndoOptions struct {
	*RootOptions
	Checkpoint string
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UndoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Reverse an applied checkpoint",
		Long: `Undo reverses the completed actions of a checkpoint in reverse order.
Actions whose effect was since disturbed by hand are skipped, so undo is
safe to re-run.

Example:
  rosie undo --checkpoint 2f6c...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndo(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Checkpoint, "checkpoint", "", "checkpoint id to reverse (required)")
	_ = cmd.MarkFlagRequired("checkpoint")

	return cmd
}

func runUndo(cmd *cobra.Command, opts *UndoOptions) error {
	ctx := cmdContext(cmd)
	logger := setupLogging(opts.RootOptions)
	out := formatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	sess, cleanup, err := openSession(ctx, cfg, pipeline.Capabilities{}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	exec := newExecutor(cfg, logger)
	res, err := exec.Undo(ctx, opts.Checkpoint)
	if err != nil {
		out.Fail(err)
		return WrapExitError(ExitFailure, "undo", err)
	}

	if err := sess.Append(ctx, event.UndoPerformed{
		CheckpointID: res.CheckpointID,
		Reversed:     res.Reversed,
		Skipped:      res.Skipped,
	}); err != nil {
		return WrapExitError(ExitFailure, "record undo", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]interface{}{
			"checkpoint_id": res.CheckpointID,
			"reversed":      res.Reversed,
			"skipped":       res.Skipped,
		})
	}
	return out.Success(fmt.Sprintf("undid checkpoint %s: %d reversed, %d skipped",
		res.CheckpointID, res.Reversed, res.Skipped))
}
