package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/models"
)

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the field to a JSON snapshot or a CSV of nodes",
		Long: `Export writes the whole field (nodes, fields, users and ID counters) as a
JSON snapshot that import can restore. The csv format writes one row per
node and cannot be imported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("export: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			snap, err := st.Export(ctx)
			if err != nil {
				return fmt.Errorf("export: reading field: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("export: creating output file: %w", createErr)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			switch format {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(snap); encErr != nil {
					return fmt.Errorf("export: encoding JSON: %w", encErr)
				}
			case "csv":
				if csvErr := writeNodesCSV(w, snap.Nodes); csvErr != nil {
					return fmt.Errorf("export: %w", csvErr)
				}
			default:
				return fmt.Errorf("export: unsupported format %q (use json or csv)", format)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d nodes to %s\n", len(snap.Nodes), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	return cmd
}

func writeNodesCSV(w io.Writer, nodes []models.Node) error {
	cw := csv.NewWriter(w)
	headers := []string{"id", "title", "status", "author", "tags", "connections", "connection_count", "created_at", "last_tended"}
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i := range nodes {
		n := &nodes[i]
		row := []string{
			n.ID,
			n.Title,
			string(n.Status),
			n.Author,
			strings.Join(n.Tags, ";"),
			strings.Join(n.Connections, ";"),
			strconv.Itoa(n.ConnectionCount),
			n.CreatedAt.Format("2006-01-02T15:04:05Z"),
			n.LastTended.Format("2006-01-02T15:04:05Z"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}
