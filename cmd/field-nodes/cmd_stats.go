package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/models"
)

func fieldsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the fields nodes are organized into",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("fields: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			fields, err := st.ListFields(ctx)
			if err != nil {
				return fmt.Errorf("fields: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, fields)
			}
			for _, f := range fields {
				fmt.Fprintf(out, "%-22s %-28s %4d nodes  %s\n", f.ID, f.Name, f.NodeCount, truncate(f.Description, 50))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show node counts by status and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("stats: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			byType, err := st.StatsByType(ctx)
			if err != nil {
				return fmt.Errorf("stats: by type: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, struct {
					models.Stats
					ByType []models.TypeStats `json:"byType"`
				}{stats, byType})
			}

			fmt.Fprintf(out, "Nodes:   %d\n", stats.TotalNodes)
			fmt.Fprintf(out, "Fields:  %d\n", stats.TotalFields)
			fmt.Fprintf(out, "Users:   %d\n", stats.TotalUsers)
			fmt.Fprintf(out, "Average connections: %.1f\n", stats.AverageConnections)

			fmt.Fprintln(out, "\nBy status:")
			statuses := make([]string, 0, len(stats.ByStatus))
			for s := range stats.ByStatus {
				statuses = append(statuses, string(s))
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(out, "  %-16s %d\n", s, stats.ByStatus[models.NodeStatus(s)])
			}

			fmt.Fprintln(out, "\nBy type:")
			for _, ts := range byType {
				fmt.Fprintf(out, "  %s  %-16s %d\n", ts.Type, ts.Name, ts.Count)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
