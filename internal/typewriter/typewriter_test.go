package typewriter

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fieldnodes/field-nodes/internal/kv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testDelays = Delays{
	Initial:   300 * time.Millisecond,
	Char:      20 * time.Millisecond,
	Space:     30 * time.Millisecond,
	EmptyLine: 50 * time.Millisecond,
	Line:      100 * time.Millisecond,
}

func instant(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func collect(ch <-chan Frame) []Frame {
	var out []Frame
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestStepCadence(t *testing.T) {
	s := New(WithDelays(testDelays))
	st := NewState([]string{"ab", "", "c d"})

	var waits []time.Duration
	for i := 0; i < 20; i++ {
		next, wait, done := s.Step(st)
		waits = append(waits, wait)
		st = next
		if done {
			break
		}
	}

	assert.Equal(t, []time.Duration{
		300 * time.Millisecond, // initial
		20 * time.Millisecond,  // a
		20 * time.Millisecond,  // b
		100 * time.Millisecond, // between lines
		50 * time.Millisecond,  // empty line
		20 * time.Millisecond,  // c
		30 * time.Millisecond,  // space
		20 * time.Millisecond,  // d
	}, waits)
	assert.True(t, st.Complete())
	assert.Equal(t, []string{"ab", "", "c d"}, st.Visible())
}

func TestStepOnCompleteStateIsNoop(t *testing.T) {
	s := New(WithDelays(testDelays))
	st := NewState([]string{"hi"}).Finish()
	next, wait, done := s.Step(st)
	assert.True(t, done)
	assert.Zero(t, wait)
	assert.Equal(t, st, next)
}

func TestFrameCaret(t *testing.T) {
	st := NewState([]string{"héllo", "world"})
	assert.Equal(t, Frame{Lines: []string{Caret}}, st.Frame())

	st.Col = 2
	f := st.Frame()
	assert.False(t, f.Done)
	assert.Equal(t, []string{"hé" + Caret}, f.Lines)

	f = st.Finish().Frame()
	assert.True(t, f.Done)
	assert.Equal(t, []string{"héllo", "world"}, f.Lines)
}

func TestJitterStaysInBounds(t *testing.T) {
	d := testDelays
	d.Jitter = 5 * time.Millisecond
	s := New(WithDelays(d), WithRand(rand.New(rand.NewPCG(1, 2))))
	st := NewState([]string{"xxxxxxxxxxxxxxxxxxxx"})
	st, _, _ = s.Step(st)
	for !st.Complete() {
		var wait time.Duration
		st, wait, _ = s.Step(st)
		assert.GreaterOrEqual(t, wait, d.Char)
		assert.Less(t, wait, d.Char+d.Jitter)
	}
}

func TestPlayRevealsAndMarksSeen(t *testing.T) {
	store := kv.NewMemory()
	var completed atomic.Int32
	s := New(
		WithDelays(testDelays),
		WithSleep(instant),
		WithSeenStore(store),
		WithOnComplete(func() { completed.Add(1) }),
	)

	frames := collect(s.Play(context.Background(), []string{"ok", "go"}))
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.True(t, last.Done)
	assert.Equal(t, []string{"ok", "go"}, last.Lines)
	for _, f := range frames[:len(frames)-1] {
		assert.False(t, f.Done)
		assert.Contains(t, f.Lines[len(f.Lines)-1], Caret)
	}

	seen, err := kv.Flag(context.Background(), store, kv.KeyTypewriterSeen)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, int32(1), completed.Load())
}

func TestPlaySeenShortCircuits(t *testing.T) {
	store := kv.NewMemory()
	require.NoError(t, store.Set(context.Background(), kv.KeyTypewriterSeen, "true"))
	var completed atomic.Int32
	s := New(
		WithSeenStore(store),
		WithSleep(func(context.Context, time.Duration) error {
			t.Error("sleep must not be called when seen")
			return nil
		}),
		WithOnComplete(func() { completed.Add(1) }),
	)

	frames := collect(s.Play(context.Background(), []string{"one", "two"}))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Done)
	assert.Equal(t, []string{"one", "two"}, frames[0].Lines)
	assert.Equal(t, int32(1), completed.Load())
}

func TestPlaySkip(t *testing.T) {
	s := New(WithSkip(true), WithSleep(func(context.Context, time.Duration) error {
		t.Error("sleep must not be called when skipping")
		return nil
	}))
	frames := collect(s.Play(context.Background(), []string{"x"}))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Done)
}

func TestPlayCancelStopsPromptly(t *testing.T) {
	store := kv.NewMemory()
	var completed atomic.Int32
	s := New(
		WithDelays(Delays{Initial: time.Hour, Char: time.Hour}),
		WithSeenStore(store),
		WithOnComplete(func() { completed.Add(1) }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Play(ctx, []string{"never finishes"})

	first := <-ch
	assert.False(t, first.Done)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "no frame may follow cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not stop after cancel")
	}

	_, err := store.Get(context.Background(), kv.KeyTypewriterSeen)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	assert.Zero(t, completed.Load())
}

func TestPlayEmpty(t *testing.T) {
	s := New(WithSleep(instant))
	frames := collect(s.Play(context.Background(), nil))
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Done)
	assert.Empty(t, frames[0].Lines)
}
