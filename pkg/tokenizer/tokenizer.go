// Package tokenizer splits node text into comparable words and keeps model
// prompts inside a rough token budget.
package tokenizer

import (
	"strings"
	"unicode"
)

// stopWords are dropped by Words; they would make every pair of nodes overlap.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "how": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"we": true, "what": true, "when": true, "with": true, "our": true, "not": true,
}

// Words returns the distinct lowercase words of text, in first-seen order,
// without stop words or words shorter than three runes.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// EstimateTokens provides a rough token count estimate.
// Uses the heuristic of ~4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)

	wordEstimate := int(float64(words) * 1.3)
	charEstimate := chars / 4

	return (wordEstimate + charEstimate) / 2
}

// TruncateToTokenBudget truncates text to approximately fit within a token budget.
func TruncateToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}

	// Truncate at a word boundary, never inside a multi-byte rune.
	truncated := text[:maxChars]
	for len(truncated) > 0 && !isRuneStart(text[len(truncated)]) {
		truncated = truncated[:len(truncated)-1]
	}
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// FitLines keeps whole lines, in order, while their estimated total stays
// within budget. It returns the kept lines.
func FitLines(lines []string, budget int) []string {
	if budget <= 0 {
		return nil
	}
	used := 0
	for i, l := range lines {
		cost := EstimateTokens(l) + 1
		if used+cost > budget {
			return lines[:i]
		}
		used += cost
	}
	return lines
}
