package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
)

func createCmd() *cobra.Command {
	var (
		nodeType string
		thought  string
		author   string
		status   string
		tags     []string
		sources  []string
	)

	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			typ := models.NodeType(strings.ToUpper(nodeType))
			if !typ.IsValid() {
				return fmt.Errorf("create: unknown node type %q (use RN, CN, SN, RF or SY)", nodeType)
			}
			if author == "" {
				author = cfg.MCP.Author
			}

			n := models.Node{
				Title:         strings.TrimSpace(args[0]),
				Thought:       strings.TrimSpace(thought),
				Author:        author,
				Tags:          tags,
				Status:        models.NodeStatus(status),
				SystemContext: models.RawSystemContext,
				Origin:        models.Origin{Type: models.OriginOther, Description: "No source provided"},
			}
			if len(sources) > 0 {
				n.Origin.Description = strings.Join(sources, ", ")
			}
			for _, src := range sources {
				n.Artifacts = append(n.Artifacts, models.Artifact{
					Type:     models.ArtifactURL,
					URL:      src,
					Metadata: &models.ArtifactMetadata{Title: src},
				})
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("create: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			created, err := st.CreateNode(ctx, n, typ)
			if err != nil {
				return fmt.Errorf("create: %w", err)
			}
			metrics.Inc(metrics.NodesCreated)

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s [%s]\n", created.ID, created.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&nodeType, "type", "t", string(models.NodeTypeRaw), "node type: RN, CN, SN, RF or SY")
	cmd.Flags().StringVar(&thought, "thought", "", "the thought behind the node")
	cmd.Flags().StringVar(&author, "author", "", "author handle (default mcp.author)")
	cmd.Flags().StringVar(&status, "status", "", "initial status (default derived from sources)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "source URL (repeatable)")
	return cmd
}

func getCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "get [node-id]",
		Short: "Retrieve a single node by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("get: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			n, err := st.GetNode(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, n)
			}

			fmt.Fprintf(out, "ID:          %s\n", n.ID)
			fmt.Fprintf(out, "Title:       %s\n", n.Title)
			fmt.Fprintf(out, "Status:      %s\n", n.Status)
			fmt.Fprintf(out, "Author:      %s\n", n.Author)
			fmt.Fprintf(out, "Origin:      %s\n", n.Origin.Description)
			fmt.Fprintf(out, "Tags:        %v\n", n.Tags)
			fmt.Fprintf(out, "Connections: %v\n", n.Connections)
			fmt.Fprintf(out, "Suggested:   %v\n", n.SuggestedConnections)
			fmt.Fprintf(out, "Artifacts:   %d\n", len(n.Artifacts))
			fmt.Fprintf(out, "Created:     %s\n", n.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Tended:      %s\n", n.LastTended.Format("2006-01-02 15:04:05"))
			if n.Thought != "" {
				fmt.Fprintf(out, "\nThought:\n%s\n", n.Thought)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		opts       models.SearchOptions
		status     string
		sortBy     string
		sortOrder  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes, optionally filtered by field, status, author or tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			opts.Status = models.NodeStatus(status)
			opts.SortBy = models.SortBy(sortBy)
			opts.SortOrder = models.SortOrder(sortOrder)
			if err := models.Validate(opts); err != nil {
				return fmt.Errorf("list: %w", err)
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("list: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			nodes, err := st.SearchAdvanced(ctx, opts)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return printNodes(cmd.OutOrStdout(), nodes, outputJSON)
		},
	}

	cmd.Flags().StringVar(&opts.Field, "field", "", "filter by field ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&opts.Author, "author", "", "filter by author")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "filter by tag (repeatable, any may match)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by recent, connections, title or status")
	cmd.Flags().StringVar(&sortOrder, "order", "", "asc or desc")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func searchCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search node titles, thoughts, tags, authors and sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("search: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			nodes, err := st.Search(ctx, args[0])
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return printNodes(cmd.OutOrStdout(), nodes, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func updateCmd() *cobra.Command {
	var (
		title   string
		thought string
		status  string
		tags    []string
	)

	cmd := &cobra.Command{
		Use:   "update [node-id]",
		Short: "Update a node's title, thought, status or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			var patch models.NodePatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("thought") {
				patch.Thought = &thought
			}
			if flags.Changed("status") {
				s := models.NodeStatus(status)
				if !s.IsValid() {
					return fmt.Errorf("update: unknown status %q", status)
				}
				patch.Status = &s
			}
			if flags.Changed("tag") {
				patch.Tags = &tags
			}
			if patch == (models.NodePatch{}) {
				return fmt.Errorf("update: nothing to change (use --title, --thought, --status or --tag)")
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("update: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			n, err := st.UpdateNode(ctx, strings.ToUpper(args[0]), patch)
			if err != nil {
				return fmt.Errorf("update: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s [%s]\n", n.ID, n.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&thought, "thought", "", "new thought")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [node-id]",
		Short: "Delete a node by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("delete: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			id := strings.ToUpper(args[0])
			if err := st.DeleteNode(ctx, id); err != nil {
				return fmt.Errorf("delete: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted node %s\n", id)
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	var (
		relationship string
		createdBy    string
	)

	cmd := &cobra.Command{
		Use:   "connect [source-id] [target-id]",
		Short: "Connect two nodes in both directions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			conn := models.Connection{
				SourceID:     strings.ToUpper(args[0]),
				TargetID:     strings.ToUpper(args[1]),
				Relationship: models.RelationshipType(relationship),
				CreatedBy:    createdBy,
			}
			if err := models.Validate(conn); err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			st, err := newStore(logger)
			if err != nil {
				return fmt.Errorf("connect: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			if err := st.Connect(ctx, conn); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			metrics.Inc(metrics.ConnectionsCreated)

			fmt.Fprintf(cmd.OutOrStdout(), "Connected %s ⟷ %s (%s)\n", conn.SourceID, conn.TargetID, conn.Relationship)
			return nil
		},
	}

	cmd.Flags().StringVar(&relationship, "relationship", string(models.RelExpands), "expands, supports, revises, situates, verifies or challenges")
	cmd.Flags().StringVar(&createdBy, "by", "", "who made the connection")
	return cmd
}

func printNodes(w io.Writer, nodes []models.Node, asJSON bool) error {
	if asJSON {
		return writeJSON(w, nodes)
	}
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes found.")
		return nil
	}
	for i := range nodes {
		n := &nodes[i]
		fmt.Fprintf(w, "%-10s [%-14s] %s (%d connections)\n", n.ID, n.Status, truncate(n.Title, 60), n.ConnectionCount)
	}
	fmt.Fprintf(w, "\n%d node(s)\n", len(nodes))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
