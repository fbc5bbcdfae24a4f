package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/pkg/tokenizer"
	"github.com/fieldnodes/field-nodes/pkg/xmlutil"
)

const (
	// claudeMaxTokens bounds the ranking response, which is a short JSON array.
	claudeMaxTokens = 256

	// promptTokenBudget bounds the candidate list embedded in the prompt.
	promptTokenBudget = 2000

	// thoughtTokenBudget bounds each node body in the prompt.
	thoughtTokenBudget = 120
)

// ClaudeSuggester asks Claude to order the heuristic candidates by how well
// each would extend the target node. Tags always come from the heuristic.
//
// On any API failure it degrades to the heuristic order, so callers always
// get a usable result.
type ClaudeSuggester struct {
	client    *anthropic.Client
	model     string
	heuristic *HeuristicSuggester
	logger    *slog.Logger
}

// NewClaude creates a suggester backed by the Anthropic API. Extra request
// options are appended after the API key.
func NewClaude(apiKey, model string, logger *slog.Logger, opts ...option.RequestOption) *ClaudeSuggester {
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ClaudeSuggester{
		client:    &c,
		model:     model,
		heuristic: NewHeuristic(logger),
		logger:    logger,
	}
}

// Suggest reranks the heuristic candidates. It returns a nil error even when
// the model call fails.
func (s *ClaudeSuggester) Suggest(ctx context.Context, target models.Node, pool []models.Node) (Result, error) {
	res, err := s.heuristic.Suggest(ctx, target, pool)
	if err != nil || len(res.Connections) < 2 {
		return res, err
	}

	lines := make([]string, 0, len(res.Connections))
	for i, c := range res.Connections {
		lines = append(lines, fmt.Sprintf("[%d] %s", i, xmlutil.Escape(c.Title)))
	}
	lines = tokenizer.FitLines(lines, promptTokenBudget)
	candidates := res.Connections[:len(lines)]
	tail := res.Connections[len(lines):]

	prompt := fmt.Sprintf(`You help people connect ideas in a collaborative knowledge field.

Given a node and a numbered list of candidate nodes, output a JSON array of the candidate indices ordered from the MOST to the LEAST meaningful connection. Include every index exactly once.

Output ONLY a valid JSON array of integers, nothing else. Example: [2, 0, 1]

<node>
%s
%s
</node>

<candidates>
%s
</candidates>`,
		xmlutil.Tag("title", target.Title),
		xmlutil.Tag("thought", tokenizer.TruncateToTokenBudget(target.Thought, thoughtTokenBudget)),
		strings.Join(lines, "\n"),
	)

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		s.fallback("Claude API call failed", "error", err)
		return res, nil
	}

	var text string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text = strings.TrimSpace(resp.Content[i].Text)
			break
		}
	}
	if text == "" {
		s.fallback("empty response from Claude")
		return res, nil
	}

	var order []int
	if err := json.Unmarshal([]byte(text), &order); err != nil {
		s.fallback("could not parse Claude response", "response", text, "error", err)
		return res, nil
	}

	seen := make(map[int]bool, len(candidates))
	ranked := make([]Candidate, 0, len(res.Connections))
	for _, idx := range order {
		if idx >= 0 && idx < len(candidates) && !seen[idx] {
			ranked = append(ranked, candidates[idx])
			seen[idx] = true
		}
	}
	for i := range candidates {
		if !seen[i] {
			ranked = append(ranked, candidates[i])
		}
	}
	res.Connections = append(ranked, tail...)
	s.logger.Debug("suggest: reranked candidates", "target", target.ID, "order", order)
	return res, nil
}

func (s *ClaudeSuggester) fallback(msg string, args ...any) {
	metrics.Inc(metrics.SuggestFallbacks)
	s.logger.Warn("suggest: "+msg+", using heuristic order", args...)
}
