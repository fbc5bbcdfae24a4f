package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/models"
)

func importCmd() *cobra.Command {
	var (
		filePath string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a field snapshot or a JSONL file of nodes",
		Long: `Import restores a JSON snapshot written by export. Each collection present
in the snapshot replaces the stored one.

The jsonl format is one node object per line and replaces the stored nodes;
ID counters are recomputed from the imported IDs.

Use - as the file path to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			// Open input source.
			var r io.Reader
			if filePath == "" || filePath == "-" {
				r = cmd.InOrStdin()
			} else {
				f, openErr := os.Open(filePath)
				if openErr != nil {
					return fmt.Errorf("import: opening file: %w", openErr)
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			var snap models.Snapshot
			switch strings.ToLower(format) {
			case "json":
				if decErr := json.NewDecoder(r).Decode(&snap); decErr != nil {
					return fmt.Errorf("import: decoding JSON: %w", decErr)
				}
			case "jsonl":
				nodes, readErr := readNodesJSONL(r)
				if readErr != nil {
					return fmt.Errorf("import: %w", readErr)
				}
				snap.Nodes = nodes
			default:
				return fmt.Errorf("import: unsupported format %q (use json or jsonl)", format)
			}

			for i := range snap.Nodes {
				snap.Nodes[i].ID = strings.ToUpper(strings.TrimSpace(snap.Nodes[i].ID))
				snap.Nodes[i].Normalize()
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("import: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if err := st.Import(ctx, snap); err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d nodes, %d fields, %d users\n",
				len(snap.Nodes), len(snap.Fields), len(snap.Users))
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "-", "path to input file (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "json", "input format: json or jsonl")
	return cmd
}

func readNodesJSONL(r io.Reader) ([]models.Node, error) {
	nodes := []models.Node{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var n models.Node
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			return nil, fmt.Errorf("decoding JSONL line: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading JSONL: %w", err)
	}
	return nodes, nil
}
