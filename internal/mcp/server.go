// Package mcp implements the Model Context Protocol server for field nodes.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
	"github.com/fieldnodes/field-nodes/pkg/xmlutil"
)

// defaultListLimit caps list and search results unless the caller asks otherwise.
const defaultListLimit = 20

// Server wraps an MCPServer with field node dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	st     store.NodeStore
	author string
	logger *slog.Logger
}

// NewServer creates a new MCP server. Nodes created without an explicit
// author are attributed to author. A nil st makes every tool return an
// error result instead of panicking.
func NewServer(st store.NodeStore, author string, logger *slog.Logger) *Server {
	s := &Server{st: st, author: author, logger: logger}

	mcpSrv := mcpserver.NewMCPServer(
		"field-nodes",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildCreateNodeTool(), s.handleCreateNode)
	mcpSrv.AddTool(buildGetNodeTool(), s.handleGetNode)
	mcpSrv.AddTool(buildSearchNodesTool(), s.handleSearchNodes)
	mcpSrv.AddTool(buildListNodesTool(), s.handleListNodes)
	mcpSrv.AddTool(buildConnectNodesTool(), s.handleConnectNodes)
	mcpSrv.AddTool(buildNodeStatsTool(), s.handleNodeStats)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleCreateNode is the exported handler for the "create_node" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleCreateNode(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleCreateNode(ctx, req)
}

// HandleGetNode is the exported handler for the "get_node" tool.
func (s *Server) HandleGetNode(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGetNode(ctx, req)
}

// HandleSearchNodes is the exported handler for the "search_nodes" tool.
func (s *Server) HandleSearchNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearchNodes(ctx, req)
}

// HandleListNodes is the exported handler for the "list_nodes" tool.
func (s *Server) HandleListNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListNodes(ctx, req)
}

// HandleConnectNodes is the exported handler for the "connect_nodes" tool.
func (s *Server) HandleConnectNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleConnectNodes(ctx, req)
}

// HandleNodeStats is the exported handler for the "node_stats" tool.
func (s *Server) HandleNodeStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleNodeStats(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// storeFailure turns a store error into a tool error result. Not-found and
// validation messages are safe to show; anything else is logged.
func (s *Server) storeFailure(op string, err error) *mcpgo.CallToolResult {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, models.ErrInvalid) {
		return mcpgo.NewToolResultError(err.Error())
	}
	metrics.Inc(metrics.StorageErrors)
	s.logger.Error("mcp: store operation failed", "op", op, "error", err)
	return mcpgo.NewToolResultErrorf("%s failed: storage unavailable", op)
}

// summary is the compact node form returned by list and search tools.
type summary struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Status      models.NodeStatus `json:"status"`
	Author      string            `json:"author"`
	Tags        []string          `json:"tags"`
	Connections int               `json:"connections"`
}

func summarize(nodes []models.Node, limit int) []summary {
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	out := make([]summary, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, summary{
			ID:          n.ID,
			Title:       n.Title,
			Status:      n.Status,
			Author:      n.Author,
			Tags:        n.Tags,
			Connections: n.ConnectionCount,
		})
	}
	return out
}

// --- tool definitions ---

func buildCreateNodeTool() mcpgo.Tool {
	return mcpgo.NewTool("create_node",
		mcpgo.WithDescription("Plant a node in the field. A node with at least one source is grounded; without sources it stays a draft."),
		mcpgo.WithString("title",
			mcpgo.Required(),
			mcpgo.Description("The node statement, up to 280 characters"),
		),
		mcpgo.WithString("thought",
			mcpgo.Description("Longer description, up to 1000 characters"),
		),
		mcpgo.WithString("type",
			mcpgo.Description("Node type: RN raw, CN context, SN support, RF reflection, SY system (default: RN)"),
		),
		mcpgo.WithString("author",
			mcpgo.Description("Author handle (default: the server's configured author)"),
		),
		mcpgo.WithArray("sources",
			mcpgo.Description("Source URLs that ground the node"),
			mcpgo.WithStringItems(),
		),
		mcpgo.WithArray("tags",
			mcpgo.Description("Tags that place the node in a field"),
			mcpgo.WithStringItems(),
		),
	)
}

func buildGetNodeTool() mcpgo.Tool {
	return mcpgo.NewTool("get_node",
		mcpgo.WithDescription("Fetch one node with its connections, artifacts and review metadata."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("Node ID in the form FN-XX.NNN"),
		),
	)
}

func buildSearchNodesTool() mcpgo.Tool {
	return mcpgo.NewTool("search_nodes",
		mcpgo.WithDescription("Case-insensitive search across titles, thoughts, tags and origins, with optional filters."),
		mcpgo.WithString("query",
			mcpgo.Description("Text to match"),
		),
		mcpgo.WithString("field",
			mcpgo.Description("Restrict to a field ID, e.g. mutual_aid"),
		),
		mcpgo.WithString("status",
			mcpgo.Description("Restrict to a status: draft, grounded, reviewed, canonical, needs_revision"),
		),
		mcpgo.WithString("author",
			mcpgo.Description("Restrict to an author"),
		),
		mcpgo.WithString("sort_by",
			mcpgo.Description("recent, connections, title or status"),
		),
		mcpgo.WithString("sort_order",
			mcpgo.Description("asc or desc (default: asc)"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 20)"),
		),
	)
}

func buildListNodesTool() mcpgo.Tool {
	return mcpgo.NewTool("list_nodes",
		mcpgo.WithDescription("List nodes in insertion order."),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 20)"),
		),
	)
}

func buildConnectNodesTool() mcpgo.Tool {
	return mcpgo.NewTool("connect_nodes",
		mcpgo.WithDescription("Connect two nodes. Both nodes list each other afterwards."),
		mcpgo.WithString("source",
			mcpgo.Required(),
			mcpgo.Description("Source node ID"),
		),
		mcpgo.WithString("target",
			mcpgo.Required(),
			mcpgo.Description("Target node ID"),
		),
		mcpgo.WithString("relationship",
			mcpgo.Description("expands, supports, revises, situates, verifies or challenges (default: expands)"),
		),
	)
}

func buildNodeStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("node_stats",
		mcpgo.WithDescription("Field statistics: node, field and user totals, counts by status and by type."),
	)
}

// --- tool handlers ---

func (s *Server) handleCreateNode(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		return mcpgo.NewToolResultError("title is required and must not be empty"), nil
	}

	typ := models.NodeTypeRaw
	if t := req.GetString("type", ""); t != "" {
		candidate := models.NodeType(strings.ToUpper(t))
		if !candidate.IsValid() {
			return mcpgo.NewToolResultErrorf("invalid type %q: must be one of RN, CN, SN, RF, SY", t), nil
		}
		typ = candidate
	}

	author := req.GetString("author", s.author)
	sources := req.GetStringSlice("sources", nil)
	n := models.Node{
		Title:         title,
		Thought:       strings.TrimSpace(req.GetString("thought", "")),
		Author:        author,
		Tags:          req.GetStringSlice("tags", nil),
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

	created, err := s.st.CreateNode(ctx, n, typ)
	if err != nil {
		return s.storeFailure("create_node", err), nil
	}
	metrics.Inc(metrics.NodesCreated)
	s.logger.Info("mcp: node created", "id", created.ID, "status", created.Status)
	return toolResultJSON(map[string]any{"id": created.ID, "status": created.Status})
}

func (s *Server) handleGetNode(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	id := strings.ToUpper(strings.TrimSpace(req.GetString("id", "")))
	if id == "" {
		return mcpgo.NewToolResultError("id is required"), nil
	}
	n, err := s.st.GetNode(ctx, id)
	if err != nil {
		return s.storeFailure("get_node", err), nil
	}
	return toolResultJSON(n)
}

func (s *Server) handleSearchNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	opts := models.SearchOptions{
		Query:     req.GetString("query", ""),
		Field:     req.GetString("field", ""),
		Status:    models.NodeStatus(req.GetString("status", "")),
		Author:    req.GetString("author", ""),
		SortBy:    models.SortBy(req.GetString("sort_by", "")),
		SortOrder: models.SortOrder(req.GetString("sort_order", "")),
	}
	if err := models.Validate(opts); err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	nodes, err := s.st.SearchAdvanced(ctx, opts)
	if err != nil {
		return s.storeFailure("search_nodes", err), nil
	}
	limit := req.GetInt("limit", defaultListLimit)
	return toolResultJSON(map[string]any{
		"query":   xmlutil.Escape(opts.Query),
		"total":   len(nodes),
		"results": summarize(nodes, limit),
	})
}

func (s *Server) handleListNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	nodes, err := s.st.ListNodes(ctx)
	if err != nil {
		return s.storeFailure("list_nodes", err), nil
	}
	limit := req.GetInt("limit", defaultListLimit)
	return toolResultJSON(map[string]any{
		"total": len(nodes),
		"nodes": summarize(nodes, limit),
	})
}

func (s *Server) handleConnectNodes(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	rel := models.RelExpands
	if r := req.GetString("relationship", ""); r != "" {
		rel = models.RelationshipType(strings.ToLower(r))
		if !rel.IsValid() {
			return mcpgo.NewToolResultErrorf("invalid relationship %q", r), nil
		}
	}
	conn := models.Connection{
		SourceID:     strings.ToUpper(strings.TrimSpace(req.GetString("source", ""))),
		TargetID:     strings.ToUpper(strings.TrimSpace(req.GetString("target", ""))),
		Relationship: rel,
		CreatedBy:    s.author,
	}
	if conn.SourceID == "" || conn.TargetID == "" {
		return mcpgo.NewToolResultError("source and target are required"), nil
	}
	if err := s.st.Connect(ctx, conn); err != nil {
		return s.storeFailure("connect_nodes", err), nil
	}
	metrics.Inc(metrics.ConnectionsCreated)
	return toolResultJSON(map[string]any{"connected": true, "source": conn.SourceID, "target": conn.TargetID, "relationship": rel})
}

func (s *Server) handleNodeStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	stats, err := s.st.Stats(ctx)
	if err != nil {
		return s.storeFailure("node_stats", err), nil
	}
	byType, err := s.st.StatsByType(ctx)
	if err != nil {
		return s.storeFailure("node_stats", err), nil
	}
	return toolResultJSON(map[string]any{"stats": stats, "by_type": byType})
}
