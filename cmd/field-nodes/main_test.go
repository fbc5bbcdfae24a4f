package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnodes/field-nodes/internal/config"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/terminal"
)

// isolate points config at a fresh SQLite file under a temp HOME.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"ANTHROPIC_API_KEY", "SUPABASE_URL", "SUPABASE_KEY", "FIELD_NODES_STORAGE_BACKEND"} {
		t.Setenv(k, "")
	}
	t.Setenv("FIELD_NODES_LOGGING_LEVEL", "error")
	dbPath := filepath.Join(home, "field.db")
	t.Setenv("FIELD_NODES_STORAGE_PATH", dbPath)
	t.Cleanup(func() { cfg = nil })
	return dbPath
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCtx(t, context.Background(), stdin, args...)
}

func runCtx(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	root.SetContext(ctx)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	require.NoError(t, err, "field-nodes %s", strings.Join(args, " "))
	return out
}

func TestCreateAndGet(t *testing.T) {
	isolate(t)

	out := mustRun(t, "create", "Mycelial networks share nutrients", "--thought", "forests trade through fungi",
		"--tag", "ecology", "--source", "https://example.com/mycelium")
	assert.Equal(t, "Created FN-RN.000 [grounded]\n", out)

	out = mustRun(t, "create", "A reflection", "--type", "rf")
	assert.Equal(t, "Created FN-RF.000 [draft]\n", out)

	out = mustRun(t, "get", "fn-rn.000", "--json")
	var n models.Node
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	assert.Equal(t, "Mycelial networks share nutrients", n.Title)
	assert.Equal(t, "steward", n.Author)
	assert.Equal(t, []string{"ecology"}, n.Tags)
	require.Len(t, n.Artifacts, 1)
	assert.Equal(t, "https://example.com/mycelium", n.Origin.Description)

	out = mustRun(t, "get", "FN-RN.000")
	assert.Contains(t, out, "Status:      grounded")
	assert.Contains(t, out, "forests trade through fungi")
}

func TestCreateRejectsUnknownType(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "create", "x", "--type", "ZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestGetMissingNode(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "get", "FN-RN.404")
	require.Error(t, err)
}

func TestListSearchAndConnect(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Soil holds water", "--tag", "ecology")
	mustRun(t, "create", "Rivers carve valleys", "--tag", "geology", "--author", "maya")

	out := mustRun(t, "list")
	assert.Contains(t, out, "FN-RN.000")
	assert.Contains(t, out, "FN-RN.001")
	assert.Contains(t, out, "2 node(s)")

	out = mustRun(t, "list", "--author", "maya")
	assert.NotContains(t, out, "FN-RN.000")
	assert.Contains(t, out, "FN-RN.001")

	_, err := run(t, "", "list", "--status", "bogus")
	require.Error(t, err)

	out = mustRun(t, "search", "valleys")
	assert.Contains(t, out, "Rivers carve valleys")
	assert.NotContains(t, out, "Soil holds water")

	out = mustRun(t, "search", "nothing-matches-this")
	assert.Contains(t, out, "No nodes found.")

	out = mustRun(t, "connect", "FN-RN.000", "fn-rn.001", "--relationship", "supports")
	assert.Contains(t, out, "FN-RN.000 ⟷ FN-RN.001 (supports)")

	var a, b models.Node
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "get", "FN-RN.000", "--json")), &a))
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "get", "FN-RN.001", "--json")), &b))
	assert.Equal(t, []string{"FN-RN.001"}, a.Connections)
	assert.Equal(t, []string{"FN-RN.000"}, b.Connections)

	_, err = run(t, "", "connect", "FN-RN.000", "FN-RN.000")
	require.Error(t, err, "a node cannot connect to itself")
}

func TestUpdateAndDelete(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Draft title")

	_, err := run(t, "", "update", "FN-RN.000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")

	_, err = run(t, "", "update", "FN-RN.000", "--status", "golden")
	require.Error(t, err)

	out := mustRun(t, "update", "FN-RN.000", "--title", "Final title", "--status", "reviewed")
	assert.Equal(t, "Updated FN-RN.000 [reviewed]\n", out)

	out = mustRun(t, "delete", "FN-RN.000")
	assert.Equal(t, "Deleted node FN-RN.000\n", out)

	_, err = run(t, "", "get", "FN-RN.000")
	require.Error(t, err)
}

func TestExportResetImport(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Keep me", "--tag", "memory")

	snapshot := mustRun(t, "export")
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(snapshot), &snap))
	require.Len(t, snap.Nodes, 1)

	csvOut := mustRun(t, "export", "--format", "csv")
	assert.True(t, strings.HasPrefix(csvOut, "id,title,status"))
	assert.Contains(t, csvOut, "FN-RN.000,Keep me,draft")

	_, err := run(t, "", "reset")
	require.Error(t, err, "reset needs --yes")

	mustRun(t, "reset", "--yes", "--ui")
	assert.Contains(t, mustRun(t, "list"), "No nodes found.")

	out, err := run(t, snapshot, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 nodes")
	assert.Contains(t, mustRun(t, "list"), "Keep me")

	// Counters came back with the snapshot.
	assert.Equal(t, "Created FN-RN.001 [draft]\n", mustRun(t, "create", "Next"))
}

func TestImportJSONL(t *testing.T) {
	isolate(t)
	jsonl := `{"id":"fn-cn.004","title":"Context","author":"maya","status":"draft"}` + "\n\n" +
		`{"id":"FN-RN.002","title":"Raw","author":"maya","status":"draft"}` + "\n"

	out, err := run(t, jsonl, "import", "--format", "jsonl")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 nodes")

	assert.Equal(t, "Created FN-CN.005 [draft]\n", mustRun(t, "create", "After", "--type", "CN"))

	_, err = run(t, "not json", "import", "--format", "jsonl")
	require.Error(t, err)
	_, err = run(t, "", "import", "--format", "xml")
	require.Error(t, err)
}

func TestTendDryRun(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Lonely")

	out := mustRun(t, "tend", "--dry-run")
	assert.Contains(t, out, "Tending report:")
	assert.Contains(t, out, "dry run")

	out = mustRun(t, "tend")
	assert.Contains(t, out, "Nodes saved:            0")
}

func TestFieldsAndStats(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "One", "--source", "https://example.com")

	fields := mustRun(t, "fields", "--json")
	var fs []models.Field
	require.NoError(t, json.Unmarshal([]byte(fields), &fs))
	assert.Len(t, fs, len(models.DefaultFields()))

	out := mustRun(t, "stats")
	assert.Contains(t, out, "Nodes:   1")
	assert.Contains(t, out, "grounded")
	assert.Contains(t, out, "Raw Node")
}

func TestSuggestApply(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Mycelium and soil ecology", "--tag", "ecology")
	mustRun(t, "create", "Soil ecology in forests", "--tag", "ecology")

	out := mustRun(t, "suggest", "FN-RN.000", "--apply")
	assert.Contains(t, out, "FN-RN.001")
	assert.Contains(t, out, "Saved 1 suggestion(s) on FN-RN.000")

	var n models.Node
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "get", "FN-RN.000", "--json")), &n))
	assert.Equal(t, []string{"FN-RN.001"}, n.SuggestedConnections)
}

func TestHealth(t *testing.T) {
	isolate(t)
	out := mustRun(t, "health")
	assert.Contains(t, out, "Store (local): OK")
	assert.Contains(t, out, "Claude API: SKIP")
}

func TestServeDrainsOnCancel(t *testing.T) {
	isolate(t)
	mustRun(t, "create", "Served node")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := runCtx(t, ctx, "", "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, err)
}

func TestTerminalPlain(t *testing.T) {
	isolate(t)

	out, err := run(t, "/orient\n", "terminal", "--plain")
	require.NoError(t, err)
	for _, l := range terminal.BootLines() {
		assert.Contains(t, out, l.Text)
	}
	assert.Contains(t, out, "guest@fieldnodes:~origin$ ")
	assert.Contains(t, out, "guest@fieldnodes:~orient$ ")
}

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "pretty"} {
		t.Run(format, func(t *testing.T) {
			cfg = &config.Config{Logging: config.LoggingConfig{Level: "debug", Format: format}}
			t.Cleanup(func() { cfg = nil })

			var buf bytes.Buffer
			newLoggerTo(&buf).Debug("tending", "id", "FN-RN.000")
			assert.Contains(t, buf.String(), "tending")
			assert.Contains(t, buf.String(), "FN-RN.000")
		})
	}
}
