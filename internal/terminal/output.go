package terminal

import (
	"strings"

	"github.com/fieldnodes/field-nodes/internal/command"
)

// Kind selects how a line is styled.
type Kind string

const (
	KindPlain  Kind = "plain"
	KindAccent Kind = "accent"
	KindMuted  Kind = "muted"
	KindPrompt Kind = "prompt"
	KindHero   Kind = "hero"
)

// Line is one rendered terminal line.
type Line struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Output is the result of handling one input. When Clear is set the renderer
// drops everything shown so far before appending Lines.
type Output struct {
	Clear bool          `json:"clear"`
	Lines []Line        `json:"lines"`
	Stage command.Stage `json:"stage"`
}

// Texts returns the plain text of every line.
func (o Output) Texts() []string {
	out := make([]string, len(o.Lines))
	for i, l := range o.Lines {
		out[i] = l.Text
	}
	return out
}

// String joins the line texts with newlines.
func (o Output) String() string {
	return strings.Join(o.Texts(), "\n")
}

// write appends text, one Line per embedded newline.
func (o *Output) write(text string, kind Kind) {
	for _, l := range strings.Split(text, "\n") {
		o.Lines = append(o.Lines, Line{Text: l, Kind: kind})
	}
}

func (o *Output) plain(text string)  { o.write(text, KindPlain) }
func (o *Output) accent(text string) { o.write(text, KindAccent) }
func (o *Output) muted(text string)  { o.write(text, KindMuted) }

// reset empties the output and marks it as a full redraw.
func (o *Output) reset() {
	o.Lines = nil
	o.Clear = true
}
