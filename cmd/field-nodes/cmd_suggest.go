package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/models"
)

func suggestCmd() *cobra.Command {
	var (
		apply      bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "suggest [node-id]",
		Short: "Propose connections and tags for a node",
		Long: `Suggest ranks other nodes as likely connections. Claude is used when
claude.api_key is set; otherwise shared keywords and tags decide.

With --apply the proposed IDs are saved as the node's suggested connections.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("suggest: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			id := strings.ToUpper(args[0])
			target, err := st.GetNode(ctx, id)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}
			pool, err := st.ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("suggest: listing nodes: %w", err)
			}

			res, err := newSuggester(logger).Suggest(ctx, target, pool)
			if err != nil {
				return fmt.Errorf("suggest: %w", err)
			}

			if apply {
				ids := res.IDs()
				if _, err := st.UpdateNode(ctx, id, models.NodePatch{SuggestedConnections: &ids}); err != nil {
					return fmt.Errorf("suggest: saving suggestions: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, res)
			}
			if len(res.Connections) == 0 {
				fmt.Fprintln(out, "No connections suggested.")
			}
			for _, c := range res.Connections {
				fmt.Fprintf(out, "%-10s %3d  %s", c.ID, c.Score, truncate(c.Title, 60))
				if len(c.Shared) > 0 {
					fmt.Fprintf(out, "  (%s)", strings.Join(c.Shared, ", "))
				}
				fmt.Fprintln(out)
			}
			if len(res.Tags) > 0 {
				fmt.Fprintf(out, "\nTags: %s\n", strings.Join(res.Tags, ", "))
			}
			if apply {
				fmt.Fprintf(out, "\nSaved %d suggestion(s) on %s\n", len(res.Connections), id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "save the suggestions on the node")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
