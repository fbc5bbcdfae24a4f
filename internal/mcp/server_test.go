package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnodes/field-nodes/internal/kv"
	fnmcp "github.com/fieldnodes/field-nodes/internal/mcp"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newMCPServer returns a Server backed by an in-memory local store.
func newMCPServer(t *testing.T) (*fnmcp.Server, *store.LocalStore) {
	t.Helper()
	st := store.NewLocalStore(kv.NewMemory(), testLogger())
	return fnmcp.NewServer(st, "steward", testLogger()), st
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestCreateNodeTool(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()

	res, err := srv.HandleCreateNode(ctx, makeReq("create_node", map[string]any{
		"title":   "care as infrastructure",
		"thought": "maintenance is work",
		"sources": []any{"https://example.org/care"},
		"tags":    []any{"care"},
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, textContent(t, res))

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.Equal(t, "FN-RN.000", out.ID)
	assert.Equal(t, "grounded", out.Status)

	n, err := st.GetNode(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, "steward", n.Author)
	assert.Equal(t, []string{"care"}, n.Tags)
	assert.Equal(t, "https://example.org/care", n.Origin.Description)
}

func TestCreateNodeToolRejectsBadInput(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"empty title", map[string]any{"title": "   "}},
		{"unknown type", map[string]any{"title": "x", "type": "QQ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.HandleCreateNode(ctx, makeReq("create_node", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}

	nodes, err := st.ListNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestCreateNodeToolReflectionType(t *testing.T) {
	srv, _ := newMCPServer(t)
	res, err := srv.HandleCreateNode(context.Background(), makeReq("create_node", map[string]any{
		"title": "what tending taught me",
		"type":  "rf",
	}))
	require.NoError(t, err)
	assert.Contains(t, textContent(t, res), "FN-RF.000")
	assert.Contains(t, textContent(t, res), "draft")
}

func TestGetNodeTool(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()
	_, err := st.CreateNode(ctx, models.Node{Title: "a", Author: "maya"}, models.NodeTypeRaw)
	require.NoError(t, err)

	res, err := srv.HandleGetNode(ctx, makeReq("get_node", map[string]any{"id": "fn-rn.000"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var n models.Node
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &n))
	assert.Equal(t, "a", n.Title)

	res, err = srv.HandleGetNode(ctx, makeReq("get_node", map[string]any{"id": "FN-RN.404"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textContent(t, res), "not found")
}

func TestSearchAndListTools(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()
	for _, title := range []string{"community archives", "server maintenance", "archive rituals"} {
		_, err := st.CreateNode(ctx, models.Node{Title: title, Author: "maya"}, models.NodeTypeRaw)
		require.NoError(t, err)
	}

	res, err := srv.HandleSearchNodes(ctx, makeReq("search_nodes", map[string]any{"query": "archive", "limit": float64(1)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var found struct {
		Total   int `json:"total"`
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &found))
	assert.Equal(t, 2, found.Total)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "FN-RN.000", found.Results[0].ID)

	res, err = srv.HandleSearchNodes(ctx, makeReq("search_nodes", map[string]any{"sort_by": "title"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &found))
	require.Len(t, found.Results, 3)
	assert.Equal(t, "FN-RN.002", found.Results[0].ID, "titles ascend by default")

	res, err = srv.HandleSearchNodes(ctx, makeReq("search_nodes", map[string]any{"sort_by": "title", "sort_order": "desc"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &found))
	require.Len(t, found.Results, 3)
	assert.Equal(t, "FN-RN.001", found.Results[0].ID)

	res, err = srv.HandleSearchNodes(ctx, makeReq("search_nodes", map[string]any{"status": "finished"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = srv.HandleListNodes(ctx, makeReq("list_nodes", nil))
	require.NoError(t, err)
	var listed struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &listed))
	assert.Equal(t, 3, listed.Total)
}

func TestConnectNodesTool(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b"} {
		_, err := st.CreateNode(ctx, models.Node{Title: title, Author: "maya"}, models.NodeTypeRaw)
		require.NoError(t, err)
	}

	res, err := srv.HandleConnectNodes(ctx, makeReq("connect_nodes", map[string]any{
		"source": "FN-RN.000", "target": "FN-RN.001", "relationship": "Supports",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, textContent(t, res))

	a, err := st.GetNode(ctx, "FN-RN.000")
	require.NoError(t, err)
	b, err := st.GetNode(ctx, "FN-RN.001")
	require.NoError(t, err)
	assert.True(t, a.HasConnection("FN-RN.001"))
	assert.True(t, b.HasConnection("FN-RN.000"))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"bad relationship", map[string]any{"source": "FN-RN.000", "target": "FN-RN.001", "relationship": "likes"}},
		{"self", map[string]any{"source": "FN-RN.000", "target": "FN-RN.000"}},
		{"missing target", map[string]any{"source": "FN-RN.000"}},
		{"unknown node", map[string]any{"source": "FN-RN.000", "target": "FN-RN.099"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.HandleConnectNodes(ctx, makeReq("connect_nodes", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestNodeStatsTool(t *testing.T) {
	srv, st := newMCPServer(t)
	ctx := context.Background()
	_, err := st.CreateNode(ctx, models.Node{Title: "a", Author: "maya"}, models.NodeTypeRaw)
	require.NoError(t, err)

	res, err := srv.HandleNodeStats(ctx, makeReq("node_stats", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var out struct {
		Stats models.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.Equal(t, 1, out.Stats.TotalNodes)
	assert.Equal(t, 5, out.Stats.TotalFields)
}

// failingStore fails every node listing.
type failingStore struct {
	*store.LocalStore
}

func (failingStore) ListNodes(context.Context) ([]models.Node, error) {
	return nil, &store.StorageError{Op: "read nodes", Err: errors.New("disk gone")}
}

func TestStorageFailureIsNotLeaked(t *testing.T) {
	st := failingStore{store.NewLocalStore(kv.NewMemory(), testLogger())}
	srv := fnmcp.NewServer(st, "steward", testLogger())

	res, err := srv.HandleListNodes(context.Background(), makeReq("list_nodes", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.NotContains(t, textContent(t, res), "disk gone")
}

func TestNilStore(t *testing.T) {
	srv := fnmcp.NewServer(nil, "steward", testLogger())
	res, err := srv.HandleNodeStats(context.Background(), makeReq("node_stats", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
