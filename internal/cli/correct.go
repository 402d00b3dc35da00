package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
	"github.com/rosiefs/rosie/internal/pipeline"
)

// NewCorrectCommand creates the correct command group.
func NewCorrectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Record a correction against the proposed plan",
		Long: `Correct records a structured correction in the event log. The plan is
recomputed incrementally on the next scan or plan invocation; only items
sharing a target directory with the corrected ones change identity.`,
	}

	cmd.AddCommand(
		newCorrectionSub(rootOpts, &cobra.Command{
			Use:   "reject <item-id>",
			Short: "Reject one plan item",
			Args:  cobra.ExactArgs(1),
		}, func(args []string) event.Correction {
			return event.Correction{Type: event.CorrectionReject, ItemID: args[0]}
		}),
		newCorrectionSub(rootOpts, &cobra.Command{
			Use:   "relabel <item-id> <label>",
			Short: "Move one item under a different label",
			Args:  cobra.ExactArgs(2),
		}, func(args []string) event.Correction {
			return event.Correction{Type: event.CorrectionRelabel, ItemID: args[0], Label: args[1]}
		}),
		newCorrectionSub(rootOpts, &cobra.Command{
			Use:   "exclude <pattern>",
			Short: "Exclude paths matching a glob pattern",
			Args:  cobra.ExactArgs(1),
		}, func(args []string) event.Correction {
			return event.Correction{Type: event.CorrectionExclude, PathPattern: args[0]}
		}),
		newCorrectionSub(rootOpts, &cobra.Command{
			Use:   "override <rule-id> <pattern> <action> [target]",
			Short: "Override the rule outcome for paths matching a glob pattern",
			Args:  cobra.RangeArgs(3, 4),
		}, func(args []string) event.Correction {
			r := &event.RuleOverride{RuleID: args[0], PathPattern: args[1], Action: args[2]}
			if len(args) == 4 {
				r.Target = args[3]
			}
			return event.Correction{Type: event.CorrectionRuleOverride, Rule: r}
		}),
	)

	return cmd
}

func newCorrectionSub(rootOpts *RootOptions, cmd *cobra.Command, build func(args []string) event.Correction) *cobra.Command {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCorrection(cmd, rootOpts, build(args))
	}
	return cmd
}

func runCorrection(cmd *cobra.Command, opts *RootOptions, c event.Correction) error {
	ctx := cmdContext(cmd)
	logger := setupLogging(opts)
	out := formatter(cmd, opts)

	if err := c.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid correction", err)
	}

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
	if c.ItemID != "" {
		if _, ok := current.Item(c.ItemID); !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown item id %s", c.ItemID))
		}
	}

	if err := sess.Append(ctx, event.CorrectionAdded{PlanID: current.PlanID, Correction: c}); err != nil {
		return WrapExitError(ExitFailure, "record correction", err)
	}
	recomputed, err := sess.RunOnce(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "recompute plan", err)
	}
	if recomputed == nil {
		return out.Success(fmt.Sprintf("recorded %s, plan unchanged", c))
	}
	return out.Success(fmt.Sprintf("recorded %s, new plan %s", c, recomputed.PlanID))
}
