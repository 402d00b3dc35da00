package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosiefs/rosie/internal/event"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Since int64
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the event log",
		Long: `Events prints the append-only log, oldest first. Use --since to skip
already-seen sequence numbers.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only events with seq greater than this")

	return cmd
}

// eventRow is the JSON shape of one listed event.
type eventRow struct {
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      event.Kind  `json:"kind"`
	Summary   string      `json:"summary"`
	Payload   interface{} `json:"payload,omitempty"`
}

func runEvents(cmd *cobra.Command, opts *EventsOptions) error {
	ctx := cmdContext(cmd)
	setupLogging(opts.RootOptions)
	out := formatter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.Read(ctx, opts.Since)
	if err != nil {
		return WrapExitError(ExitFailure, "read events", err)
	}

	if opts.Format == "json" {
		rows := make([]eventRow, len(events))
		for i, ev := range events {
			rows[i] = eventRow{
				Seq:       ev.Seq,
				Timestamp: ev.Timestamp,
				Kind:      ev.Kind(),
				Summary:   summarize(ev),
				Payload:   ev.Payload,
			}
		}
		return out.Success(rows)
	}

	if len(events) == 0 {
		return out.Success("no events")
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%6d  %s  %-20s %s\n",
			ev.Seq, ev.Timestamp.Format(time.RFC3339), ev.Kind(), summarize(ev))
	}
	return out.Success(strings.TrimRight(b.String(), "\n"))
}

// summarize renders a one-line description per event kind.
func summarize(ev event.Event) string {
	switch p := ev.Payload.(type) {
	case event.FilesScanned:
		kind := "partial"
		if p.FullRescan {
			kind = "full"
		}
		return fmt.Sprintf("%s scan of %s, %d records", kind, p.Root, len(p.Records))
	case event.RuleMatched:
		return fmt.Sprintf("%s: %s %s", p.RuleID, p.Action, p.Path)
	case event.EmbeddingsComputed:
		return fmt.Sprintf("%d vectors", len(p.Entries))
	case event.ClustersFormed:
		return fmt.Sprintf("%d clusters", len(p.Clusters))
	case event.PlanProposed:
		return fmt.Sprintf("plan %s, %d items", shortID(p.PlanID), len(p.ItemIDs))
	case event.UserApproved:
		return fmt.Sprintf("%d items of plan %s", len(p.ItemIDs), shortID(p.PlanID))
	case event.CorrectionAdded:
		return p.Correction.String()
	case event.PlanFinalized:
		return fmt.Sprintf("plan %s, %d approved", shortID(p.PlanID), len(p.ApprovedItemIDs))
	case event.ApplyStarted:
		return fmt.Sprintf("plan %s, checkpoint %s", shortID(p.PlanID), shortID(p.CheckpointID))
	case event.ActionApplied:
		return fmt.Sprintf("%s %s", p.Status, shortID(p.ItemID))
	case event.UndoPerformed:
		return fmt.Sprintf("checkpoint %s: %d reversed, %d skipped", shortID(p.CheckpointID), p.Reversed, p.Skipped)
	}
	return ""
}
