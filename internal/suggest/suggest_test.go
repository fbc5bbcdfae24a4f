package suggest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pool() (models.Node, []models.Node) {
	target := models.Node{ID: "FN-RN.000", Title: "Algorithms as curators of taste", Thought: "recommendation systems shape culture", Tags: []string{"technology"}}
	return target, []models.Node{
		target,
		{ID: "FN-RN.001", Title: "Curators and gatekeepers", Thought: "who decides taste"},
		{ID: "FN-RN.002", Title: "Gardening notes", Thought: "tomatoes need sun"},
		{ID: "FN-RN.003", Title: "Platform algorithms", Thought: "recommendation engines and culture", Tags: []string{"Technology"}},
		{ID: "FN-RN.004", Title: "Taste", Thought: "an essay"},
	}
}

func TestHeuristicRanksBySharedWordsAndTags(t *testing.T) {
	target, nodes := pool()
	res, err := NewHeuristic(testLogger()).Suggest(context.Background(), target, nodes)
	require.NoError(t, err)

	// FN-RN.003 shares algorithms, recommendation, culture and a tag.
	assert.Equal(t, []string{"FN-RN.003", "FN-RN.001", "FN-RN.004"}, res.IDs())
	assert.NotContains(t, res.IDs(), target.ID)
	assert.Contains(t, res.Connections[1].Shared, "curators")
}

func TestHeuristicSkipsExistingConnections(t *testing.T) {
	target, nodes := pool()
	target.Connections = []string{"FN-RN.003"}
	res, err := NewHeuristic(testLogger()).Suggest(context.Background(), target, nodes)
	require.NoError(t, err)
	assert.NotContains(t, res.IDs(), "FN-RN.003")
}

func TestTags(t *testing.T) {
	n := models.Node{Title: "Archiving mutual aid", Thought: "community care records", Tags: []string{"care"}}
	got := Tags(n)
	assert.Contains(t, got, "archiving")
	assert.Contains(t, got, "mutual-aid")
	assert.Contains(t, got, "community")
	assert.NotContains(t, got, "care")
	assert.IsIncreasing(t, got)

	assert.Empty(t, Tags(models.Node{Title: "zzz"}))
}

func fakeClaude(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "&lt;b&gt;", "node text must be escaped in the prompt")
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"down"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func claudeFor(srv *httptest.Server) *ClaudeSuggester {
	return NewClaude("test-key", "claude-test", testLogger(), option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
}

func TestClaudeReranks(t *testing.T) {
	target, nodes := pool()
	target.Title += " <b>"
	srv := fakeClaude(t, http.StatusOK, "[2, 0, 2, 9]")

	res, err := claudeFor(srv).Suggest(context.Background(), target, nodes)
	require.NoError(t, err)
	// Duplicate and out-of-range indices are ignored; omitted ones are appended.
	assert.Equal(t, []string{"FN-RN.004", "FN-RN.003", "FN-RN.001"}, res.IDs())
	assert.NotEmpty(t, res.Tags)
}

func TestClaudeFallsBackOnFailure(t *testing.T) {
	target, nodes := pool()
	target.Title += " <b>"
	want, err := NewHeuristic(testLogger()).Suggest(context.Background(), target, nodes)
	require.NoError(t, err)

	for name, srv := range map[string]*httptest.Server{
		"server error": fakeClaude(t, http.StatusInternalServerError, ""),
		"not json":     fakeClaude(t, http.StatusOK, "sure! here you go"),
		"empty":        fakeClaude(t, http.StatusOK, " "),
	} {
		t.Run(name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.SuggestFallbacks)
			res, err := claudeFor(srv).Suggest(context.Background(), target, nodes)
			require.NoError(t, err)
			assert.Equal(t, want.IDs(), res.IDs())
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.SuggestFallbacks))
		})
	}
}

func TestClaudeSkipsCallForFewCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	target := models.Node{ID: "FN-RN.000", Title: "lonely idea"}
	res, err := claudeFor(srv).Suggest(context.Background(), target, []models.Node{
		target,
		{ID: "FN-RN.001", Title: "another lonely thought"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"FN-RN.001"}, res.IDs())
	assert.True(t, strings.HasPrefix(res.Connections[0].Title, "another"))
}
