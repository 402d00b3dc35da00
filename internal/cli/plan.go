package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/pipeline"
	"github.com/rosiefs/rosie/internal/plan"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Out string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the current proposed plan",
		Long: `Plan prints the latest proposed plan. With --out, the plan export
document is written to a file instead.

Example:
  rosie plan
  rosie plan --out plan.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "write plan export JSON to this file")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *PlanOptions) error {
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

	current := sess.CurrentPlan()
	if current == nil {
		return NewExitError(ExitCommandError, "no plan proposed yet; run scan first")
	}

	doc := plan.Export(current)
	if opts.Out != "" {
		data, err := doc.MarshalIndent()
		if err != nil {
			return WrapExitError(ExitFailure, "export plan", err)
		}
		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "write export", err)
		}
		return out.Success(fmt.Sprintf("wrote plan %s to %s", current.PlanID, opts.Out))
	}

	if opts.Format == "json" {
		return out.Success(doc)
	}
	return out.Success(renderPlanText(doc))
}

// renderPlanText formats the plan for terminal reading, one item per line.
func renderPlanText(doc plan.ExportDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %s (%s), %d items\n", doc.PlanID, doc.Status, len(doc.Items))
	for _, it := range doc.Items {
		fmt.Fprintf(&b, "  [%s] %s %s", shortID(it.ID), it.Action, it.Source)
		if it.Target != "" {
			fmt.Fprintf(&b, " -> %s", it.Target)
		}
		fmt.Fprintf(&b, "  (%s", it.Confidence)
		for _, f := range it.RiskFlags {
			fmt.Fprintf(&b, ", %s", f)
		}
		fmt.Fprint(&b, ")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
