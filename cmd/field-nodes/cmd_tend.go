package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/lifecycle"
)

func tendCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "tend",
		Short: "Repair the graph: dangling links, reciprocity, grounding and counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("tend: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			lm := lifecycle.NewManager(st, logger)
			report, err := lm.Run(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("tend: running lifecycle: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tending report:\n")
			fmt.Fprintf(out, "  Dangling connections:   %d\n", report.Dangling)
			fmt.Fprintf(out, "  Stale suggestions:      %d\n", report.Suggestions)
			fmt.Fprintf(out, "  Reciprocated:           %d\n", report.Reciprocated)
			fmt.Fprintf(out, "  Ungrounded demoted:     %d\n", report.Ungrounded)
			fmt.Fprintf(out, "  Counts corrected:       %d\n", report.Recounted)
			fmt.Fprintf(out, "  Nodes saved:            %d\n", report.Saved)
			if len(report.Stale) > 0 {
				fmt.Fprintf(out, "  Untended:               %s\n", strings.Join(report.Stale, ", "))
			}
			if dryRun {
				fmt.Fprintln(out, "  (dry run — no changes applied)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview repairs without applying")
	return cmd
}
