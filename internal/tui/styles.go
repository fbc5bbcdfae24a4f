package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/fieldnodes/field-nodes/internal/terminal"
)

// Theme names persisted under kv.KeyTheme.
const (
	ThemeField = "field"
	ThemeMono  = "mono"
)

// palette is the set of colors a theme assigns.
type palette struct {
	plain  lipgloss.TerminalColor
	accent lipgloss.TerminalColor
	muted  lipgloss.TerminalColor
	prompt lipgloss.TerminalColor
	hero   lipgloss.TerminalColor
	ghost  lipgloss.TerminalColor
	status lipgloss.TerminalColor
}

var palettes = map[string]palette{
	ThemeField: {
		plain:  lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"},
		accent: lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"},
		muted:  lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"},
		prompt: lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#A78BFA"},
		hero:   lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"},
		ghost:  lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#4B5563"},
		status: lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"},
	},
	ThemeMono: {
		plain:  lipgloss.Color("252"),
		accent: lipgloss.Color("255"),
		muted:  lipgloss.Color("245"),
		prompt: lipgloss.Color("255"),
		hero:   lipgloss.Color("255"),
		ghost:  lipgloss.Color("240"),
		status: lipgloss.Color("242"),
	},
}

// styles are the lipgloss styles derived from a palette.
type styles struct {
	lines  map[terminal.Kind]lipgloss.Style
	ghost  lipgloss.Style
	status lipgloss.Style
	busy   lipgloss.Style
}

func newStyles(theme string) styles {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[ThemeField]
	}
	return styles{
		lines: map[terminal.Kind]lipgloss.Style{
			terminal.KindPlain:  lipgloss.NewStyle().Foreground(p.plain),
			terminal.KindAccent: lipgloss.NewStyle().Foreground(p.accent),
			terminal.KindMuted:  lipgloss.NewStyle().Foreground(p.muted),
			terminal.KindPrompt: lipgloss.NewStyle().Foreground(p.prompt).Bold(true),
			terminal.KindHero:   lipgloss.NewStyle().Foreground(p.hero).Bold(true),
		},
		ghost:  lipgloss.NewStyle().Foreground(p.ghost),
		status: lipgloss.NewStyle().Foreground(p.status).Padding(0, 1),
		busy:   lipgloss.NewStyle().Foreground(p.hero).Padding(0, 1),
	}
}

func (s styles) line(l terminal.Line) string {
	st, ok := s.lines[l.Kind]
	if !ok {
		st = s.lines[terminal.KindPlain]
	}
	return st.Render(l.Text)
}

func nextTheme(theme string) string {
	if theme == ThemeMono {
		return ThemeField
	}
	return ThemeMono
}
