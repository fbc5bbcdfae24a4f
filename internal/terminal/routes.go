package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

type handler func(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error

// route is one command in one stage. to is the stage a successful run lands
// on; empty means the stage does not change.
type route struct {
	need capability
	to   command.Stage
	run  handler
}

func say(lines ...Line) handler {
	return func(_ context.Context, _ *Session, _ command.Resolution, o *Output) error {
		o.Lines = append(o.Lines, lines...)
		return nil
	}
}

func muted(text string) Line { return Line{Text: text, Kind: KindMuted} }
func plain(text string) Line { return Line{Text: text, Kind: KindPlain} }

// buildRoutes wires every stage's commands. Commands outside the ghost-text
// table (origin /join, lineage /map, create-node /seed, node-detail /suggest)
// are routed here too; they are just never suggested.
func (m *Machine) buildRoutes() map[command.Stage]map[string]route {
	home := route{to: command.StageOrigin, run: m.home}
	help := route{run: func(ctx context.Context, _ *Session, cmd command.Resolution, o *Output) error {
		m.help(ctx, cmd.Args, o)
		return nil
	}}
	browse := route{to: command.StageBrowseNodes, run: m.browse}
	login := route{to: command.StageLogin, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
		showLogin(sess, o)
		return nil
	}}
	tend := route{need: capWrite, to: command.StageTend, run: m.startTend}
	offer := route{need: capWrite, to: command.StageOffer, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
		sess.Stage = command.StageOffer
		o.muted("identity ritual (mock) — Supabase wiring pending.")
		return nil
	}}
	steward := route{need: capSteward, to: command.StageStewardDashboard, run: m.steward}
	exploration := func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
		showExploration(sess, o)
		return nil
	}

	return map[command.Stage]map[string]route{
		command.StageOrigin: {
			"home":    home,
			"help":    help,
			"node":    {to: command.StageCreateNode, run: m.openForm},
			"browse":  browse,
			"orient":  {to: command.StageOrient, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error { showOrient(sess, o); return nil }},
			"join":    login,
			"reflect": login,
		},
		command.StageOrient: {
			"home":    home,
			"help":    help,
			"explore": {to: command.StageIdentify, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error { showIdentify(sess, o); return nil }},
		},
		command.StageCovenant: {
			"home":   home,
			"agree":  {to: command.StageIdentify, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error { showIdentify(sess, o); return nil }},
			"policy": {run: say(muted("opening the shared policy archive (placeholder)."), muted("type /agree when you are ready to continue."))},
			"exit": {to: command.StageOrigin, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageOrigin
				o.muted("connection closed. type /orient to reconnect.")
				return nil
			}},
		},
		command.StageIdentify: {
			"home": home,
			"login": {to: command.StageLogin, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageLogin
				sess.AccountStep = StepName
				sess.pendingName = ""
				o.muted("username: [__________]")
				o.accent("format: username: [your username]")
				return nil
			}},
			"guest": {to: command.StageLineage, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Identity = models.Guest()
				showExploration(sess, o)
				o.plain("welcome, guest! you can browse and explore.")
				o.plain("to write and create, you'll need an account.")
				return nil
			}},
		},
		command.StageLogin: {
			"home":  home,
			"login": login,
		},
		command.StageAccountConfirmed: {
			"home":    home,
			"explore": {to: command.StageLineage, run: exploration},
		},
		command.StageLineage: {
			"home":    home,
			"help":    help,
			"node":    {need: capCreate, to: command.StageCreateNode, run: m.openForm},
			"browse":  browse,
			"explore": {to: command.StageLineage, run: exploration},
			"login":   login,
			"map":     {run: say(muted("rendering network map… (prototype placeholder)"))},
			"lineage": {run: say(
				plain("field exploration coming soon. for now, create nodes to build the field."),
				plain("type /node to create your first node, or /browse to see existing ones."),
			)},
		},
		command.StageReflect: {
			"home":    home,
			"help":    help,
			"link":    {need: capWrite, to: command.StageLink, run: m.linkReflection},
			"tend":    tend,
			"explore": {run: m.reflectExplore},
			"offer":   offer,
			"node":    {need: capWrite, to: command.StageCreateNode, run: m.openForm},
			"browse":  browse,
			"steward": steward,
		},
		command.StageLink: {
			"home":    home,
			"help":    help,
			"tend":    tend,
			"explore": {run: say(plain("node interface coming soon. for now, use /browse to see nodes."), muted("type /reflect to return to writing"))},
			"offer":   offer,
			"node":    {need: capWrite, to: command.StageCreateNode, run: m.openForm},
			"browse":  browse,
			"steward": steward,
		},
		command.StageTend: {
			"home": home,
			"help": help,
			"done": {to: command.StageLink, run: m.finishTend},
		},
		command.StageOffer: {
			"home":    home,
			"publish": {run: say(muted("publishing flow coming soon."))},
			"back": {to: command.StageReflect, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageReflect
				o.muted("returning to reflection.")
				return nil
			}},
		},
		command.StageCreateNode: {
			"home":   home,
			"cancel": {to: command.StageLineage, run: m.cancelForm},
			"seed":   {need: capSeed, to: command.StageLineage, run: m.seed},
		},
		command.StageBrowseNodes: {
			"home": home,
			"help": help,
			"node": {need: capCreate, to: command.StageCreateNode, run: m.openForm},
			"back": {to: command.StageLineage, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageLineage
				sess.Listing = nil
				o.muted("returning to exploration.")
				return nil
			}},
			"search": {run: say(muted("search functionality coming soon."))},
			"filter": {run: say(muted("filter functionality coming soon."))},
			"login":  login,
		},
		command.StageNodeDetail: {
			"home": home,
			"help": help,
			"link": {need: capWrite, run: m.linkNode},
			"tend": {need: capWrite, run: m.tendNode},
			"back": {to: command.StageBrowseNodes, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageBrowseNodes
				sess.Current = nil
				o.muted("returning to node browser.")
				return nil
			}},
			"edit":    {run: say(muted("node editing coming soon."))},
			"suggest": {run: m.suggestFor},
		},
		command.StageStewardDashboard: {
			"home": home,
			"help": help,
			"back": {to: command.StageReflect, run: func(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
				sess.Stage = command.StageReflect
				o.muted("returning to reflection.")
				return nil
			}},
		},
	}
}

func (m *Machine) home(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
	sess.Form = nil
	sess.Listing = nil
	sess.Current = nil
	showBoot(sess, o)
	return nil
}

func (m *Machine) browse(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	nodes, err := m.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	showBrowse(sess, o, nodes)
	return nil
}

// openForm enters create-node. Guests get their autosaved draft back.
func (m *Machine) openForm(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	sess.Stage = command.StageCreateNode
	if sess.Guest() {
		sess.Form = m.loadDraft(ctx)
	} else {
		sess.Form = &NodeForm{}
	}
	o.reset()
	o.Lines = append(o.Lines, sess.Form.lines(!sess.Guest())...)
	if sess.Guest() {
		o.muted("guest mode: your draft is saved on this device. sign in to seed it.")
	}
	o.accent(formHelp)
	return nil
}

func (m *Machine) cancelForm(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	sess.Form = nil
	sess.Stage = command.StageLineage
	m.clearDraft(ctx)
	o.muted("node creation cancelled.")
	return nil
}

func (m *Machine) seed(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	f := sess.Form
	if f == nil || strings.TrimSpace(f.Statement) == "" {
		o.muted("add a statement first: statement: [your idea]")
		return nil
	}
	created, err := m.store.CreateNode(ctx, f.Node(sess.Handle(), !sess.Guest()), models.NodeTypeRaw)
	if err != nil {
		return fmt.Errorf("seed node: %w", err)
	}
	metrics.Inc(metrics.NodesCreated)
	m.logger.Info("terminal: node seeded", "id", created.ID, "status", created.Status, "author", created.Author)

	sess.Form = nil
	sess.Stage = command.StageLineage
	m.clearDraft(ctx)

	o.plain(fmt.Sprintf("node created: %s %q", created.ID, created.Title))
	if created.Status == models.StatusGrounded {
		o.plain("your node is grounded with sources and ready for review.")
	} else {
		o.plain("your node is in draft state. add sources to ground it.")
	}
	o.plain("type /browse to see all nodes, or /node to create another.")
	return nil
}

func (m *Machine) reflectExplore(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
	if sess.Guest() {
		o.plain("node interface coming soon. for now, use /browse to see nodes.")
		o.muted("type /reflect to return to writing")
		return nil
	}
	o.plain("exploration mode: browse existing nodes or create new ones.")
	o.plain("type /browse to see nodes, or /node to create a new one.")
	return nil
}

const (
	minReflection   = 10
	reflectionTitle = 80
)

// linkReflection records the reflect draft as a reflection node, which the
// tend stage then attaches evidence to.
func (m *Machine) linkReflection(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	draft := strings.TrimSpace(sess.Draft)
	if len([]rune(draft)) < minReflection {
		o.muted("add a bit more before linking (~10+ chars).")
		return nil
	}
	n := models.Node{
		Title:   clip(firstLine(draft), reflectionTitle),
		Thought: clip(draft, maxDescription),
		Author:  sess.Handle(),
		Status:  models.StatusDraft,
		SystemContext: models.SystemContext{
			Layer:        "reflection",
			Description:  "A reflective note written from the terminal",
			Instructions: "Tend it with sources and care-notes",
		},
	}
	created, err := m.store.CreateNode(ctx, n, models.NodeTypeReflection)
	if err != nil {
		return fmt.Errorf("link reflection: %w", err)
	}
	metrics.Inc(metrics.NodesCreated)

	sess.Draft = ""
	sess.Tending = created.ID
	sess.Stage = command.StageLink
	o.plain("link recorded. thank you for tending the field.")
	o.muted(fmt.Sprintf("reflection saved as %s.", created.ID))
	o.accent("/tend is now available for maintenance.")
	o.muted("you can /offer to publish or keep exploring.")
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (m *Machine) startTend(_ context.Context, sess *Session, _ command.Resolution, o *Output) error {
	sess.Stage = command.StageTend
	sess.resetEvidence()
	o.plain("tending mode: add sources, citations, or care-notes")
	o.muted("format: source: [url] or note: [your note]")
	if sess.Tending != "" {
		o.muted("tending " + sess.Tending)
	}
	return nil
}

// finishTend attaches collected sources and care-notes to the node being
// tended. With nothing collected, or nothing to attach to, it only closes
// the stage.
func (m *Machine) finishTend(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	if sess.Tending != "" && (len(sess.Sources) > 0 || len(sess.Notes) > 0) {
		n, err := m.store.GetNode(ctx, sess.Tending)
		switch {
		case errors.Is(err, store.ErrNotFound):
			m.logger.Warn("terminal: tended node disappeared", "id", sess.Tending)
			sess.Tending = ""
		case err != nil:
			return fmt.Errorf("finish tend: %w", err)
		default:
			if _, err := m.store.UpdateNode(ctx, n.ID, tendPatch(n, sess)); err != nil {
				return fmt.Errorf("finish tend: %w", err)
			}
		}
	}
	sess.resetEvidence()
	sess.Stage = command.StageLink
	o.plain("tending complete. node maintained.")
	o.muted("available: /reflect /explore /offer")
	return nil
}

func tendPatch(n models.Node, sess *Session) models.NodePatch {
	p := models.NodePatch{Tended: true}
	if len(sess.Sources) > 0 {
		arts := append([]models.Artifact(nil), n.Artifacts...)
		for _, s := range sess.Sources {
			arts = append(arts, models.Artifact{Type: models.ArtifactURL, URL: s, Metadata: &models.ArtifactMetadata{Title: s}})
		}
		p.Artifacts = &arts
		if n.Status == models.StatusDraft {
			st := models.StatusGrounded
			p.Status = &st
		}
	}
	if len(sess.Notes) > 0 {
		p.ReviewMetadata = &models.ReviewMetadata{
			ReviewerHandle: sess.Handle(),
			ReviewDate:     time.Now().UTC().Format("2006-01-02"),
			ReviewComment:  strings.Join(sess.Notes, "\n"),
		}
	}
	return p
}

func (m *Machine) steward(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("steward dashboard: %w", err)
	}
	byType, err := m.store.StatsByType(ctx)
	if err != nil {
		return fmt.Errorf("steward dashboard: %w", err)
	}
	sess.Stage = command.StageStewardDashboard

	var b strings.Builder
	fmt.Fprintf(&b, "nodes: %d · fields: %d · users: %d\n", stats.TotalNodes, stats.TotalFields, stats.TotalUsers)
	fmt.Fprintf(&b, "average connections: %.2f\n\nby status:\n", stats.AverageConnections)
	for _, s := range models.NodeStatuses {
		fmt.Fprintf(&b, "  %-15s %d\n", s, stats.ByStatus[s])
	}
	b.WriteString("\nby type:")
	for _, t := range byType {
		fmt.Fprintf(&b, "\n  FN-%s %-16s %d", t.Type, t.Name, t.Count)
	}
	screen(o, "STEWARD DASHBOARD", b.String(), "type /back to return to reflection")
	return nil
}

var relationshipNames = func() string {
	names := make([]string, len(models.RelationshipTypes))
	for i, r := range models.RelationshipTypes {
		names[i] = string(r)
	}
	return strings.Join(names, "|")
}()

// linkNode connects the open node to another: /link FN-XX.NNN [relationship].
func (m *Machine) linkNode(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	cur := sess.Current
	if cur == nil {
		o.muted("open a node first: type /back and choose a number.")
		return nil
	}
	if len(cmd.Args) == 0 {
		o.muted("usage: /link FN-XX.NNN [" + relationshipNames + "]")
		return nil
	}
	target := strings.ToUpper(cmd.Args[0])
	rel := models.RelExpands
	if len(cmd.Args) > 1 {
		rel = models.RelationshipType(strings.ToLower(cmd.Args[1]))
		if !rel.IsValid() {
			o.muted("relationship must be one of: " + relationshipNames)
			return nil
		}
	}
	switch {
	case target == cur.ID:
		o.muted("a node cannot connect to itself.")
		return nil
	case cur.HasConnection(target):
		o.muted(fmt.Sprintf("%s is already connected to %s.", cur.ID, target))
		return nil
	}

	err := m.store.Connect(ctx, models.Connection{SourceID: cur.ID, TargetID: target, Relationship: rel, CreatedBy: sess.Handle()})
	if errors.Is(err, store.ErrNotFound) {
		o.muted(fmt.Sprintf("no node %s in the field.", target))
		return nil
	}
	if err != nil {
		return fmt.Errorf("link node: %w", err)
	}
	metrics.Inc(metrics.ConnectionsCreated)

	refreshed, err := m.store.GetNode(ctx, cur.ID)
	if err != nil {
		return fmt.Errorf("link node: %w", err)
	}
	sess.Current = &refreshed
	o.plain(fmt.Sprintf("connected %s ↔ %s (%s)", cur.ID, target, rel))
	o.muted("both nodes now list each other.")
	return nil
}

func (m *Machine) tendNode(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	if sess.Current == nil {
		o.muted("open a node first: type /back and choose a number.")
		return nil
	}
	n, err := m.store.UpdateNode(ctx, sess.Current.ID, models.NodePatch{Tended: true})
	if err != nil {
		return fmt.Errorf("tend node: %w", err)
	}
	sess.Current = &n
	o.plain(fmt.Sprintf("node tended: %s. thank you for caring for the field.", n.ID))
	return nil
}

// suggestFor lists connection and tag suggestions for the open node. For an
// account the suggested IDs are also stored on the node.
func (m *Machine) suggestFor(ctx context.Context, sess *Session, _ command.Resolution, o *Output) error {
	cur := sess.Current
	if cur == nil {
		o.muted("open a node first: type /back and choose a number.")
		return nil
	}
	pool, err := m.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	res, err := m.suggester.Suggest(ctx, *cur, pool)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	if len(res.Connections) == 0 {
		o.muted("no suggestions yet. the field needs more nodes nearby.")
	} else {
		o.plain("suggested connections:")
		for _, c := range res.Connections {
			line := fmt.Sprintf("  %s %q", c.ID, c.Title)
			if len(c.Shared) > 0 {
				line += " (shared: " + strings.Join(c.Shared, ", ") + ")"
			}
			o.plain(line)
		}
	}
	if len(res.Tags) > 0 {
		o.plain("suggested tags: " + strings.Join(res.Tags, ", "))
	}
	if !sess.Guest() && len(res.Connections) > 0 {
		ids := res.IDs()
		n, err := m.store.UpdateNode(ctx, cur.ID, models.NodePatch{SuggestedConnections: &ids})
		if err != nil {
			return fmt.Errorf("suggest: %w", err)
		}
		sess.Current = &n
	}
	if len(res.Connections) > 0 {
		o.accent("type /link FN-XX.NNN to connect")
	}
	return nil
}
