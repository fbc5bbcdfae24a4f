// Package terminal implements the Field Nodes conversation: a stage machine
// that turns one line of input into the lines to render next.
package terminal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
	"github.com/fieldnodes/field-nodes/internal/suggest"
)

const storageFailure = "something went wrong saving to the field. please try again."

// Machine holds the terminal's dependencies. It is safe to share between
// sessions; all conversation state lives in *Session.
type Machine struct {
	store     store.NodeStore
	kv        kv.Store
	auth      Authenticator
	suggester suggest.Suggester
	logger    *slog.Logger

	routes   map[command.Stage]map[string]route
	freeText map[command.Stage]handler
}

// Option configures a Machine.
type Option func(*Machine)

// WithAuthenticator replaces the default LocalAuth.
func WithAuthenticator(a Authenticator) Option {
	return func(m *Machine) { m.auth = a }
}

// WithSuggester replaces the default keyword suggester.
func WithSuggester(s suggest.Suggester) Option {
	return func(m *Machine) { m.suggester = s }
}

// New creates a Machine over st and the kv store used for drafts and UI flags.
func New(st store.NodeStore, kvs kv.Store, logger *slog.Logger, opts ...Option) *Machine {
	m := &Machine{store: st, kv: kvs, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.auth == nil {
		m.auth = NewLocalAuth(st, 0)
	}
	if m.suggester == nil {
		m.suggester = suggest.NewHeuristic(logger)
	}
	m.routes = m.buildRoutes()
	m.freeText = m.buildFreeText()
	return m
}

// Boot resets sess to origin and returns the greeting.
func (m *Machine) Boot(sess *Session) Output {
	o := &Output{}
	showBoot(sess, o)
	o.Stage = sess.Stage
	return *o
}

// Handle processes one line of input. Failed persistence leaves the session
// on the stage it started from.
func (m *Machine) Handle(ctx context.Context, sess *Session, raw string) Output {
	before := sess.Stage
	res := command.Resolve(raw, before)
	if res.Bare && sess.secretInput() {
		// A password that happens to be a command word is still a password.
		res = command.Resolution{Kind: command.FreeText, Text: res.Text}
	}
	metrics.CommandsTotal.WithLabelValues(string(before), res.Kind.String()).Inc()

	o := &Output{}
	if err := m.dispatch(ctx, sess, res, o); err != nil {
		m.fail(sess, before, err, o)
	}
	o.Stage = sess.Stage
	return *o
}

func (m *Machine) dispatch(ctx context.Context, sess *Session, res command.Resolution, o *Output) error {
	if res.Kind == command.FreeText && res.Text == "" {
		switch sess.Stage {
		case command.StageOrient:
			showCovenant(sess, o)
			return nil
		case command.StageCovenant:
			o.muted("type /agree to continue or /policy to review terms.")
			return nil
		}
	}

	if res.Kind == command.FreeText && sess.secretInput() {
		o.accent("> " + strings.Repeat("•", utf8.RuneCountInString(res.Text)))
	} else {
		o.accent("> " + strings.TrimPrefix(res.Text, "/"))
	}

	if res.Kind == command.FreeText {
		if h, ok := m.freeText[sess.Stage]; ok {
			return h(ctx, sess, res, o)
		}
		m.hint(sess.Stage, o)
		return nil
	}

	r, ok := m.routes[sess.Stage][res.Name]
	if !ok {
		m.hint(sess.Stage, o)
		return nil
	}
	if !m.permitted(sess, r.need, o) {
		return nil
	}
	return r.run(ctx, sess, res, o)
}

// fail renders a handler error. Validation problems are shown as is; anything
// else is a persistence failure.
func (m *Machine) fail(sess *Session, before command.Stage, err error, o *Output) {
	sess.Stage = before
	if errors.Is(err, models.ErrInvalid) {
		o.muted(err.Error())
		return
	}
	metrics.Inc(metrics.StorageErrors)
	m.logger.Error("terminal: storage failure", "stage", before, "error", err)
	o.muted(storageFailure)
}

var stageHints = map[command.Stage]string{
	command.StageOrigin:           "type /node to create your first node",
	command.StageOrient:           "press Enter to continue or /explore to skip.",
	command.StageCovenant:         "available: /home · /agree · /policy · /exit",
	command.StageIdentify:         "just type your name, or use /login /guest",
	command.StageAccountConfirmed: "press Enter to begin exploring",
	command.StageLogin:            "just type your username",
	command.StageLineage:          "available: /node · /browse · /explore",
	command.StageLink:             "available: /tend /explore /offer",
	command.StageTend:             "format: source: [url] or note: [your note] or /done",
	command.StageOffer:            "available: /publish /back",
	command.StageCreateNode:       "use the form above to create your node, or /cancel to go back.",
	command.StageBrowseNodes:      "available: /back · /node · /search · /filter",
	command.StageNodeDetail:       "available: /back · /link · /tend · /edit",
	command.StageStewardDashboard: "available: /back · /home",
}

func (m *Machine) hint(stage command.Stage, o *Output) {
	if h, ok := stageHints[stage]; ok {
		o.muted(h)
		return
	}
	o.muted("available: " + command.Hint(stage))
}

// capability is what a route requires of the session's identity.
type capability int

const (
	capNone capability = iota
	// capCreate opens the node form from lineage or browse.
	capCreate
	capWrite
	capSeed
	capSteward
)

func (m *Machine) permitted(sess *Session, need capability, o *Output) bool {
	if need == capNone {
		return true
	}
	if !sess.Guest() {
		if need == capSteward && sess.Identity.Role != models.RoleSteward {
			o.muted("the steward dashboard is open to stewards only.")
			o.muted("record your role with role: steward when you tend this field.")
			return false
		}
		return true
	}

	metrics.Inc(metrics.GuestDenials)
	switch need {
	case capCreate:
		o.muted("guests cannot create nodes. create an account to participate.")
	case capSeed:
		o.muted("you're browsing as a guest. sign in to seed your node; your draft is kept.")
		o.muted("type /cancel, then /login to create an account.")
		return false
	default:
		o.muted("guests can only browse. create an account to write and create.")
	}
	o.muted("type /login to create an account.")
	return false
}
