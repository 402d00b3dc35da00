package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/config"
	"github.com/rosiefs/rosie/internal/pipeline"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Rules string
	Full  bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "Scan a directory tree and propose a plan",
		Long: `Scan walks the given root, records the result in the event log, runs
rule matching and clustering, and proposes a reorganization plan.

Example:
  rosie scan ~/Downloads --rules rules.yaml --full
  rosie scan ./inbox --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Rules, "rules", "", "path to rules file")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "treat as a full rescan (recompute everything)")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions, root string) error {
	ctx := cmdContext(cmd)
	logger := setupLogging(opts.RootOptions)
	out := formatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	caps := pipeline.Capabilities{Scanner: pipeline.NewFSScanner()}
	if opts.Rules != "" {
		rs, err := config.LoadRules(opts.Rules)
		if err != nil {
			return WrapExitError(ExitCommandError, "load rules", err)
		}
		caps.Rules = pipeline.NewGlobRuleMatcher(rs)
	}

	sess, cleanup, err := openSession(ctx, cfg, caps, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sess.Refresh(ctx, root, opts.Full); err != nil {
		return WrapExitError(ExitFailure, "refresh", err)
	}
	proposed, err := sess.RunOnce(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "plan", err)
	}
	if err := sess.SaveSnapshots(ctx); err != nil {
		return WrapExitError(ExitFailure, "save snapshots", err)
	}

	if proposed == nil {
		return out.Success("scan recorded, plan unchanged")
	}
	if opts.Format == "json" {
		return out.Success(map[string]interface{}{
			"plan_id": proposed.PlanID,
			"items":   len(proposed.Items),
		})
	}
	return out.Success(fmt.Sprintf("proposed plan %s with %d items", proposed.PlanID, len(proposed.Items)))
}
