// Package typewriter reveals terminal output one character at a time.
//
// Playback is a pure state machine (State and Scheduler.Step) so the TUI can
// drive it from its own event loop, plus Play, which runs the same steps on a
// goroutine and delivers frames on a channel until the context is cancelled.
package typewriter

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fieldnodes/field-nodes/internal/kv"
)

// Caret is appended to the last visible line while playback is incomplete.
const Caret = "▍"

// Delays controls playback cadence. Jitter adds a random [0, Jitter) to the
// initial and per-character delays.
type Delays struct {
	Initial   time.Duration
	Char      time.Duration
	Space     time.Duration
	EmptyLine time.Duration
	Line      time.Duration
	Jitter    time.Duration
}

// DefaultDelays returns the stock cadence.
func DefaultDelays() Delays {
	return Delays{
		Initial:   300 * time.Millisecond,
		Char:      20 * time.Millisecond,
		Space:     30 * time.Millisecond,
		EmptyLine: 50 * time.Millisecond,
		Line:      100 * time.Millisecond,
		Jitter:    10 * time.Millisecond,
	}
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepTimer(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scheduler owns the cadence and the seen flag.
type Scheduler struct {
	delays     Delays
	seen       kv.Store
	skip       bool
	sleep      SleepFunc
	onComplete func()
	logger     *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSeenStore persists the seen flag in store. Once set, Play short circuits;
// callers that animate several screens consult Seen for the intro only.
func WithSeenStore(store kv.Store) Option {
	return func(s *Scheduler) { s.seen = store }
}

// WithDelays overrides the cadence.
func WithDelays(d Delays) Option {
	return func(s *Scheduler) { s.delays = d }
}

// WithJitter overrides only the jitter bound.
func WithJitter(j time.Duration) Option {
	return func(s *Scheduler) { s.delays.Jitter = j }
}

// WithSleep replaces the timer, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// WithRand seeds jitter deterministically.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rnd = r }
}

// WithSkip disables animation as if the seen flag were set.
func WithSkip(skip bool) Option {
	return func(s *Scheduler) { s.skip = skip }
}

// WithOnComplete registers a callback run after every playback completes,
// animated or not.
func WithOnComplete(fn func()) Option {
	return func(s *Scheduler) { s.onComplete = fn }
}

// WithLogger sets the logger used for flag persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New builds a Scheduler with the default cadence.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		delays: DefaultDelays(),
		sleep:  sleepTimer,
		logger: slog.New(slog.DiscardHandler),
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) jitter() time.Duration {
	if s.delays.Jitter <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rnd.Int64N(int64(s.delays.Jitter)))
}

// Seen reports whether playback should short circuit. A read failure is
// logged and treated as not seen.
func (s *Scheduler) Seen(ctx context.Context) bool {
	if s.skip {
		return true
	}
	if s.seen == nil {
		return false
	}
	ok, err := kv.Flag(ctx, s.seen, kv.KeyTypewriterSeen)
	if err != nil {
		s.logger.Warn("typewriter: read seen flag", "error", err)
		return false
	}
	return ok
}

// Disabled reports whether animation is switched off for every playback,
// whatever the seen flag says.
func (s *Scheduler) Disabled() bool {
	return s.skip
}

// Complete runs the completion side effects: the seen flag and the callback.
func (s *Scheduler) Complete(ctx context.Context) {
	if s.seen != nil {
		if err := s.seen.Set(ctx, kv.KeyTypewriterSeen, "true"); err != nil {
			s.logger.Warn("typewriter: write seen flag", "error", err)
		}
	}
	if s.onComplete != nil {
		s.onComplete()
	}
}

// State is a playback position over a fixed list of lines.
type State struct {
	Lines []string
	// Line is the index of the line being revealed.
	Line int
	// Col is the number of runes of Line already visible.
	Col int

	started bool
}

// NewState starts playback of lines at the beginning.
func NewState(lines []string) State {
	return State{Lines: append([]string(nil), lines...)}
}

// Finish jumps to the fully revealed state.
func (st State) Finish() State {
	st.started = true
	if len(st.Lines) == 0 {
		return st
	}
	st.Line = len(st.Lines) - 1
	st.Col = len([]rune(st.Lines[st.Line]))
	return st
}

// Complete reports whether every line is fully visible.
func (st State) Complete() bool {
	if st.Line >= len(st.Lines) {
		return true
	}
	return st.Line == len(st.Lines)-1 && st.Col >= len([]rune(st.Lines[st.Line]))
}

// Visible returns the revealed text without the caret.
func (st State) Visible() []string {
	if len(st.Lines) == 0 {
		return nil
	}
	last := min(st.Line, len(st.Lines)-1)
	out := make([]string, 0, last+1)
	out = append(out, st.Lines[:last]...)
	runes := []rune(st.Lines[last])
	out = append(out, string(runes[:min(st.Col, len(runes))]))
	return out
}

// Frame is one rendered snapshot of playback.
type Frame struct {
	Lines []string
	Done  bool
}

// Frame renders st, with the caret on the last line while incomplete.
func (st State) Frame() Frame {
	lines := st.Visible()
	if st.Complete() {
		return Frame{Lines: lines, Done: true}
	}
	if len(lines) == 0 {
		return Frame{Lines: []string{Caret}}
	}
	lines[len(lines)-1] += Caret
	return Frame{Lines: lines}
}

// Step advances st by one tick and returns the new state together with how
// long to wait before showing it. done is true once the new state is complete.
func (s *Scheduler) Step(st State) (next State, wait time.Duration, done bool) {
	if st.Complete() {
		return st, 0, true
	}
	if !st.started {
		st.started = true
		return st, s.delays.Initial + s.jitter(), st.Complete()
	}
	runes := []rune(st.Lines[st.Line])
	switch {
	case st.Col < len(runes):
		wait = s.delays.Char
		if runes[st.Col] == ' ' {
			wait = s.delays.Space
		}
		wait += s.jitter()
		st.Col++
	case len(runes) == 0:
		wait = s.delays.EmptyLine
		st.Line++
		st.Col = 0
	default:
		wait = s.delays.Line
		st.Line++
		st.Col = 0
	}
	return st, wait, st.Complete()
}

// Play reveals lines on a goroutine and sends a frame per tick. The channel
// is closed when playback completes or ctx is cancelled; after cancellation
// no further frame is sent and the completion side effects do not run.
func (s *Scheduler) Play(ctx context.Context, lines []string) <-chan Frame {
	ch := make(chan Frame)
	go func() {
		defer close(ch)
		st := NewState(lines)
		if s.Seen(ctx) {
			if !send(ctx, ch, st.Finish().Frame()) {
				return
			}
			s.Complete(ctx)
			return
		}
		if !send(ctx, ch, st.Frame()) {
			return
		}
		for !st.Complete() {
			next, wait, _ := s.Step(st)
			if err := s.sleep(ctx, wait); err != nil {
				return
			}
			st = next
			if !send(ctx, ch, st.Frame()) {
				return
			}
		}
		s.Complete(ctx)
	}()
	return ch
}

func send(ctx context.Context, ch chan<- Frame, f Frame) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case ch <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
