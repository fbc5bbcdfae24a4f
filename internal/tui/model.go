// Package tui renders the terminal state machine as a bubbletea program.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/terminal"
	"github.com/fieldnodes/field-nodes/internal/typewriter"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// footerHeight is the prompt line plus the status bar.
	footerHeight = 2
)

// outputMsg carries the result of one machine call back to the event loop.
type outputMsg struct {
	out terminal.Output
}

// tickMsg advances typewriter playback. gen ties it to the output that
// started it; ticks from an older generation are dropped.
type tickMsg struct {
	gen   int
	state typewriter.State
}

// Model is the bubbletea model for the field nodes terminal.
type Model struct {
	ctx     context.Context
	machine *terminal.Machine
	sess    *terminal.Session
	typer   *typewriter.Scheduler
	kv      kv.Store
	logger  *slog.Logger

	input    textinput.Model
	viewport viewport.Model
	theme    string
	styles   styles

	history []terminal.Line
	playing []terminal.Line
	play    typewriter.State
	gen     int
	// intro is set while the launch greeting plays; only it honours and
	// records the seen flag.
	intro bool

	// Session fields copied after each call so View never reads the
	// session while a machine call may be running.
	stage  command.Stage
	handle string
	secret bool

	busy   bool
	width  int
	height int
}

// New builds the model and queues the boot greeting. kvs holds the theme.
func New(ctx context.Context, machine *terminal.Machine, sess *terminal.Session, typer *typewriter.Scheduler, kvs kv.Store, logger *slog.Logger) *Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 1000
	ti.Focus()

	theme, err := kv.GetOr(ctx, kvs, kv.KeyTheme, ThemeField)
	if err != nil {
		logger.Warn("tui: read theme", "error", err)
	}
	if _, ok := palettes[theme]; !ok {
		theme = ThemeField
	}

	m := &Model{
		ctx:      ctx,
		machine:  machine,
		sess:     sess,
		typer:    typer,
		kv:       kvs,
		logger:   logger,
		input:    ti,
		viewport: viewport.New(defaultWidth, defaultHeight-footerHeight),
		theme:    theme,
		styles:   newStyles(theme),
		width:    defaultWidth,
		height:   defaultHeight,
	}
	return m
}

// Init shows the boot greeting.
func (m *Model) Init() tea.Cmd {
	boot := m.machine.Boot(m.sess)
	return tea.Batch(textinput.Blink, m.show(boot, true))
}

// Update handles keys, machine results and playback ticks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-footerHeight, 1)
		m.input.Width = max(msg.Width-lipgloss.Width(m.promptLabel())-1, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)

	case outputMsg:
		m.busy = false
		return m, m.show(msg.out, false)

	case tickMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.play = msg.state
		if m.play.Complete() {
			intro := m.intro
			m.settle()
			if intro {
				m.typer.Complete(m.ctx)
			}
			return m, nil
		}
		m.refresh()
		return m, m.tick()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyTab:
		if s := command.Suggest(m.input.Value(), m.stage); s != "" {
			m.input.SetValue(s)
			m.input.CursorEnd()
		}
		return m, nil

	case tea.KeyCtrlT:
		m.theme = nextTheme(m.theme)
		m.styles = newStyles(m.theme)
		if err := m.kv.Set(m.ctx, kv.KeyTheme, m.theme); err != nil {
			m.logger.Warn("tui: save theme", "error", err)
		}
		m.refresh()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		// The prompt stays locked until the running call reports back, so a
		// slow write cannot be submitted twice.
		if m.busy {
			return m, nil
		}
		raw := m.input.Value()
		m.input.Reset()
		m.busy = true
		m.skipPlayback()
		return m, m.submit(raw)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs the machine off the event loop.
func (m *Model) submit(raw string) tea.Cmd {
	machine, sess, ctx := m.machine, m.sess, m.ctx
	return func() tea.Msg {
		return outputMsg{out: machine.Handle(ctx, sess, raw)}
	}
}

// show starts playback of out, replacing the screen when out.Clear is set.
// intro marks the launch greeting, which is shown instantly once seen.
func (m *Model) show(out terminal.Output, intro bool) tea.Cmd {
	m.skipPlayback()
	m.stage = out.Stage
	m.handle = m.sess.Handle()
	m.secret = m.sess.SecretInput()
	if m.secret {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	if out.Clear {
		m.history = nil
	}

	m.gen++
	m.playing = out.Lines
	m.play = typewriter.NewState(out.Texts())
	m.intro = intro
	if len(out.Lines) == 0 || m.typer.Disabled() || (intro && m.typer.Seen(m.ctx)) {
		m.settle()
		return nil
	}
	return m.tick()
}

// tick schedules the next playback step for the current generation.
func (m *Model) tick() tea.Cmd {
	next, wait, _ := m.typer.Step(m.play)
	gen := m.gen
	return tea.Tick(wait, func(time.Time) tea.Msg {
		return tickMsg{gen: gen, state: next}
	})
}

// skipPlayback finishes any running playback at once. Bumping gen makes
// ticks already in flight stale.
func (m *Model) skipPlayback() {
	if m.playing == nil {
		return
	}
	m.gen++
	m.settle()
}

// settle moves the playing lines into history.
func (m *Model) settle() {
	m.history = append(m.history, m.playing...)
	m.playing = nil
	m.play = typewriter.State{}
	m.intro = false
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.content())
	m.viewport.GotoBottom()
}

// content renders history plus the visible part of the playing lines.
func (m *Model) content() string {
	var b strings.Builder
	for _, l := range m.history {
		b.WriteString(m.styles.line(l))
		b.WriteByte('\n')
	}
	if m.playing != nil {
		frame := m.play.Frame()
		for i, text := range frame.Lines {
			kind := terminal.KindPlain
			if i < len(m.playing) {
				kind = m.playing[i].Kind
			}
			b.WriteString(m.styles.line(terminal.Line{Text: text, Kind: kind}))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m *Model) promptLabel() string {
	handle := m.handle
	if handle == "" {
		handle = "guest"
	}
	return fmt.Sprintf("%s@fieldnodes:~%s$ ", handle, m.stage)
}

// ghost is the untyped remainder of the suggested command.
func (m *Model) ghost() string {
	if m.secret {
		return ""
	}
	v := m.input.Value()
	s := command.Suggest(v, m.stage)
	return strings.TrimPrefix(s, v)
}

// View renders the transcript, the prompt with ghost text and a status bar.
func (m *Model) View() string {
	prompt := m.styles.lines[terminal.KindPrompt].Render(m.promptLabel()) +
		m.input.View() + m.styles.ghost.Render(m.ghost())

	status := m.styles.status.Render(fmt.Sprintf("%s · tab completes · ctrl+t theme · esc quits", m.stage))
	if m.busy {
		status = m.styles.busy.Render("working…")
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), prompt, status)
}

// Run starts the program on the alternate screen and blocks until it exits.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal: %w", err)
	}
	return nil
}
