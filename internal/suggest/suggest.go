// Package suggest proposes connections and tags for a node.
package suggest

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/pkg/tokenizer"
)

// defaultMaxConnections caps how many candidates a suggestion returns.
const defaultMaxConnections = 5

// Candidate is a node proposed as a connection.
type Candidate struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Score  int      `json:"score"`
	Shared []string `json:"shared,omitempty"`
}

// Result holds proposed connections, best first, and proposed tags.
type Result struct {
	Connections []Candidate `json:"connections"`
	Tags        []string    `json:"tags"`
}

// IDs returns the candidate node IDs in order.
func (r Result) IDs() []string {
	out := make([]string, 0, len(r.Connections))
	for _, c := range r.Connections {
		out = append(out, c.ID)
	}
	return out
}

// Suggester proposes connections for target from pool.
type Suggester interface {
	Suggest(ctx context.Context, target models.Node, pool []models.Node) (Result, error)
}

// tagPatterns map a tag to keywords that imply it. The tags mirror the
// default field tags so suggested tags land nodes in a field.
var tagPatterns = map[string][]string{
	"systems":        {"system", "systems", "architecture", "protocol", "network"},
	"design":         {"design", "interface", "prototype", "pattern"},
	"collaboration":  {"collaborat", "together", "shared", "collective"},
	"feminism":       {"feminis", "gender", "patriarch"},
	"theory":         {"theory", "theoretical", "framework", "concept"},
	"technology":     {"technolog", "algorithm", "software", "digital", "platform"},
	"mutual-aid":     {"mutual aid", "mutual-aid", "solidarity", "support network"},
	"community":      {"community", "neighbo", "collective", "belonging"},
	"care":           {"care", "caring", "tending", "rest", "pacing"},
	"archiving":      {"archiv", "record", "catalog"},
	"preservation":   {"preserv", "conserv", "memory"},
	"knowledge":      {"knowledge", "learning", "research", "evidence"},
	"infrastructure": {"infrastructure", "server", "hosting", "maintenance"},
	"sustainability": {"sustainab", "long-term", "resilien"},
}

// HeuristicSuggester scores candidates by shared words and tags and derives
// tags from keyword patterns.
type HeuristicSuggester struct {
	logger *slog.Logger
	max    int
}

// NewHeuristic creates a keyword-based suggester.
func NewHeuristic(logger *slog.Logger) *HeuristicSuggester {
	return &HeuristicSuggester{logger: logger, max: defaultMaxConnections}
}

// Suggest never fails; the error is part of the Suggester contract.
func (h *HeuristicSuggester) Suggest(_ context.Context, target models.Node, pool []models.Node) (Result, error) {
	return Result{
		Connections: h.candidates(target, pool),
		Tags:        Tags(target),
	}, nil
}

func nodeText(n models.Node) string {
	return n.Title + " " + n.Thought + " " + strings.Join(n.Tags, " ")
}

func (h *HeuristicSuggester) candidates(target models.Node, pool []models.Node) []Candidate {
	words := make(map[string]bool)
	for _, w := range tokenizer.Words(nodeText(target)) {
		words[w] = true
	}
	tags := make(map[string]bool)
	for _, t := range target.Tags {
		tags[strings.ToLower(t)] = true
	}

	var out []Candidate
	for _, n := range pool {
		if n.ID == target.ID || target.HasConnection(n.ID) {
			continue
		}
		c := Candidate{ID: n.ID, Title: n.Title}
		for _, w := range tokenizer.Words(nodeText(n)) {
			if words[w] {
				c.Score++
				c.Shared = append(c.Shared, w)
			}
		}
		for _, t := range n.Tags {
			if tags[strings.ToLower(t)] {
				c.Score += 2
			}
		}
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > h.max {
		out = out[:h.max]
	}
	h.logger.Debug("suggest: scored candidates", "target", target.ID, "pool", len(pool), "kept", len(out))
	return out
}

// Tags returns pattern-derived tags not already on n, in sorted order.
func Tags(n models.Node) []string {
	lower := strings.ToLower(n.Title + " " + n.Thought + " " + n.Origin.Description)
	have := make(map[string]bool, len(n.Tags))
	for _, t := range n.Tags {
		have[strings.ToLower(t)] = true
	}
	var out []string
	for tag, patterns := range tagPatterns {
		if have[tag] {
			continue
		}
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				out = append(out, tag)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
