package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// flakyKV fails writes on demand, standing in for a full disk.
type flakyKV struct {
	*kv.Memory
	failWrites atomic.Bool
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

type harness struct {
	t       *testing.T
	m       *Machine
	store   *store.LocalStore
	backing *flakyKV
	ui      *kv.Memory
	auth    *LocalAuth
	sess    *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backing := &flakyKV{Memory: kv.NewMemory()}
	st := store.NewLocalStore(backing, testLogger())
	ui := kv.NewMemory()
	auth := NewLocalAuth(st, bcrypt.MinCost)
	return &harness{
		t:       t,
		m:       New(st, ui, testLogger(), WithAuthenticator(auth)),
		store:   st,
		backing: backing,
		ui:      ui,
		auth:    auth,
		sess:    NewSession(),
	}
}

// send feeds every input in order and returns the last output.
func (h *harness) send(inputs ...string) Output {
	h.t.Helper()
	var out Output
	for _, in := range inputs {
		out = h.m.Handle(context.Background(), h.sess, in)
	}
	return out
}

func (h *harness) register(name, password string) {
	h.t.Helper()
	_, err := h.auth.Register(context.Background(), name, password)
	require.NoError(h.t, err)
}

func (h *harness) seedNode(title string) models.Node {
	h.t.Helper()
	n, err := h.store.CreateNode(context.Background(), models.Node{Title: title, Author: "maya"}, models.NodeTypeRaw)
	require.NoError(h.t, err)
	return n
}

func (h *harness) nodes() []models.Node {
	h.t.Helper()
	nodes, err := h.store.ListNodes(context.Background())
	require.NoError(h.t, err)
	return nodes
}

func account(name string) *models.Identity {
	return models.NewAccountIdentity(name, "id-"+name, "")
}

func TestBootGreeting(t *testing.T) {
	h := newHarness(t)
	h.sess.Stage = command.StageReflect

	out := h.m.Boot(h.sess)
	assert.True(t, out.Clear)
	assert.Equal(t, command.StageOrigin, out.Stage)
	assert.Equal(t, command.StageOrigin, h.sess.Stage)
	require.Len(t, out.Lines, 8)
	assert.Equal(t, "guest@fieldnodes:~FIELD", out.Lines[0].Text)
	assert.Equal(t, KindHero, out.Lines[1].Kind)
	assert.Equal(t, "> type /orient to learn more about the system", out.Lines[7].Text)
}

func TestHomeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.sess.Stage = command.StageTend

	first := h.send("/home")
	second := h.send("/home")

	assert.Equal(t, first, second)
	assert.True(t, first.Clear)
	assert.Equal(t, command.StageOrigin, h.sess.Stage)
	assert.Equal(t, BootLines(), first.Lines)
	assert.Equal(t, "maya", h.sess.Identity.Name, "going home keeps the identity")
}

func TestOnboardingCreatesAccount(t *testing.T) {
	h := newHarness(t)

	out := h.send("/orient")
	assert.Equal(t, command.StageOrient, out.Stage)
	assert.Contains(t, out.String(), "┌─ ORIENTATION")

	out = h.send("")
	assert.Equal(t, command.StageCovenant, out.Stage)
	assert.Contains(t, out.String(), "We design for care, not competition.")

	out = h.send("")
	assert.Equal(t, []string{"type /agree to continue or /policy to review terms."}, out.Texts())

	out = h.send("/policy")
	assert.Contains(t, out.Texts(), "opening the shared policy archive (placeholder).")

	out = h.send("/agree")
	assert.Equal(t, command.StageIdentify, out.Stage)
	assert.Equal(t, "type your name below:", out.Lines[len(out.Lines)-1].Text)

	out = h.send("m")
	assert.Contains(t, out.Texts(), "please provide a name (2+ characters)")
	assert.Equal(t, StepName, h.sess.AccountStep)

	out = h.send("Maya Angelou")
	assert.Contains(t, out.Texts(), "name: Maya Angelou ✓")
	assert.Equal(t, StepPassword, h.sess.AccountStep)

	out = h.send("abc")
	assert.Contains(t, out.Texts(), "password must be at least 4 characters")
	assert.Equal(t, "> •••", out.Lines[0].Text, "passwords are never echoed")

	out = h.send("secret")
	assert.Equal(t, command.StageAccountConfirmed, out.Stage)
	assert.Contains(t, out.Texts(), "welcome, maya.angelou@fieldnodes")
	require.NotNil(t, h.sess.Identity)
	assert.False(t, h.sess.Guest())

	u, err := h.store.GetUser(context.Background(), "Maya Angelou")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret")))

	out = h.send("")
	assert.Equal(t, command.StageLineage, out.Stage)
	assert.Contains(t, out.Texts(), "   maya.angelou@fieldnodes")
}

func TestDuplicateAccountNameIsRejected(t *testing.T) {
	h := newHarness(t)
	h.register("maya", "secret")
	h.sess.Stage = command.StageCovenant

	out := h.send("/agree", "maya", "another")
	assert.Equal(t, command.StageIdentify, out.Stage)
	assert.Contains(t, out.Texts(), "the name maya is taken. choose another, or use /login.")
	assert.Equal(t, StepName, h.sess.AccountStep)
	assert.True(t, h.sess.Guest())
}

func TestCovenantExit(t *testing.T) {
	h := newHarness(t)
	h.sess.Stage = command.StageCovenant

	out := h.send("/exit")
	assert.Equal(t, command.StageOrigin, out.Stage)
	assert.Equal(t, []string{"> exit", "connection closed. type /orient to reconnect."}, out.Texts())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.register("maya", "secret")

	out := h.send("/join")
	assert.Equal(t, command.StageLogin, out.Stage)
	assert.Contains(t, out.Texts(), "do you have an account?")

	out = h.send("maya")
	assert.Equal(t, []string{"> maya", "username: maya", "password:"}, out.Texts())

	assert.True(t, h.sess.SecretInput())
	out = h.send("wrong-password")
	assert.Equal(t, command.StageLogin, out.Stage)
	assert.NotContains(t, out.String(), "wrong-password")
	assert.Contains(t, out.Texts(), "invalid username or password.")
	assert.True(t, h.sess.Guest())

	out = h.send("maya", "secret")
	assert.Equal(t, command.StageReflect, out.Stage)
	assert.Contains(t, out.Texts(), "welcome back, maya")
	assert.Contains(t, out.Texts(), "available actions: /reflect · /link · /tend · /explore")
	assert.Equal(t, "maya", h.sess.Identity.Name)
}

func TestLoginUnknownUser(t *testing.T) {
	h := newHarness(t)

	out := h.send("/reflect", "nobody", "secret")
	assert.Equal(t, command.StageLogin, out.Stage)
	assert.Contains(t, out.Texts(), "invalid username or password.")
}

func TestGuestCannotCreate(t *testing.T) {
	h := newHarness(t)
	h.sess.Stage = command.StageIdentify
	before := testutil.ToFloat64(metrics.GuestDenials)

	out := h.send("/guest")
	assert.Equal(t, command.StageLineage, out.Stage)
	assert.Contains(t, out.Texts(), "welcome, guest! you can browse and explore.")
	assert.Contains(t, out.Texts(), "   guest@fieldnodes")

	out = h.send("/node")
	assert.Equal(t, command.StageLineage, out.Stage)
	assert.Equal(t, []string{
		"> node",
		"guests cannot create nodes. create an account to participate.",
		"type /login to create an account.",
	}, out.Texts())
	assert.Empty(t, h.nodes())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.GuestDenials))

	out = h.send("/login")
	assert.Equal(t, command.StageLogin, out.Stage)
}

func TestGuestCannotWriteInReflect(t *testing.T) {
	cases := map[string]*models.Identity{
		"guest sentinel": models.Guest(),
		"no identity":    nil,
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.sess.Identity = id
			h.sess.Stage = command.StageReflect
			h.sess.Draft = "a reflection long enough to link"

			for _, in := range []string{"/link", "/tend", "/offer", "/node", "/steward", "role: steward", "more thoughts"} {
				out := h.send(in)
				assert.Equal(t, command.StageReflect, out.Stage, in)
				assert.Contains(t, out.Texts(), "guests can only browse. create an account to write and create.", in)
				assert.Contains(t, out.Texts(), "type /login to create an account.", in)
			}
			assert.Empty(t, h.nodes())
			assert.Equal(t, "a reflection long enough to link", h.sess.Draft)

			out := h.send("/explore")
			assert.Contains(t, out.Texts(), "node interface coming soon. for now, use /browse to see nodes.")
		})
	}
}

func TestGuestEmptyLineInReflectIsQuiet(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = models.Guest()
	h.sess.Stage = command.StageReflect
	before := testutil.ToFloat64(metrics.GuestDenials)

	out := h.send("")
	assert.Equal(t, command.StageReflect, out.Stage)
	assert.NotContains(t, out.Texts(), "guests can only browse. create an account to write and create.")
	assert.Equal(t, before, testutil.ToFloat64(metrics.GuestDenials))
}

func TestGuestHandleIsReserved(t *testing.T) {
	for _, name := range []string{"Guest!", "!!", "guest."} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.sess.Stage = command.StageIdentify

			out := h.send(name)
			assert.Contains(t, out.Texts(), "that name is reserved. choose a name with letters or numbers.")
			assert.Equal(t, StepName, h.sess.AccountStep)
			_, err := h.store.GetUser(context.Background(), name)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestGuestDraftIsAutosavedAndRestored(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = models.Guest()
	ctx := context.Background()

	out := h.send("/node")
	assert.Equal(t, command.StageCreateNode, out.Stage)
	assert.True(t, out.Clear)

	h.send("statement: tending as infrastructure", "source: https://example.org/care")
	raw, err := h.ui.Get(ctx, kv.KeyRawNodeDraft)
	require.NoError(t, err)
	assert.Contains(t, raw, "tending as infrastructure")

	h.send("/home")
	out = h.send("/node")
	assert.Contains(t, out.Texts(), "statement: tending as infrastructure")
	assert.Contains(t, out.Texts(), "  [1] https://example.org/care")
	assert.Contains(t, out.Texts(), "status: draft", "guests never produce grounded nodes")

	out = h.send("/seed")
	assert.Equal(t, command.StageCreateNode, out.Stage)
	assert.Contains(t, out.Texts(), "you're browsing as a guest. sign in to seed your node; your draft is kept.")
	assert.Empty(t, h.nodes())
	_, err = h.ui.Get(ctx, kv.KeyRawNodeDraft)
	assert.NoError(t, err)

	out = h.send("/cancel")
	assert.Equal(t, command.StageLineage, out.Stage)
	_, err = h.ui.Get(ctx, kv.KeyRawNodeDraft)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestGuestDraftRemovedWhenEmptied(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = models.Guest()

	h.send("/node", "source: https://a.example")
	_, err := h.ui.Get(context.Background(), kv.KeyRawNodeDraft)
	require.NoError(t, err)

	h.send("remove: 1")
	_, err = h.ui.Get(context.Background(), kv.KeyRawNodeDraft)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestAccountDraftIsNotPersisted(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.sess.Stage = command.StageLineage

	h.send("/node", "statement: private thought")
	_, err := h.ui.Get(context.Background(), kv.KeyRawNodeDraft)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestSeedAssignsSequentialIDs(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("Maya")
	h.sess.Stage = command.StageLineage
	before := testutil.ToFloat64(metrics.NodesCreated)

	h.send("/node", "statement: Algorithms as curators of taste", "description: feeds decide what we like")
	out := h.send("source: https://example.org/taste")
	assert.Contains(t, out.Texts(), "status: grounded")

	out = h.send("source: https://example.org/taste")
	assert.Contains(t, out.Texts(), "that source is empty or already added.")

	out = h.send("/seed")
	assert.Equal(t, command.StageLineage, out.Stage)
	assert.Equal(t, []string{
		"> seed",
		`node created: FN-RN.000 "Algorithms as curators of taste"`,
		"your node is grounded with sources and ready for review.",
		"type /browse to see all nodes, or /node to create another.",
	}, out.Texts())
	assert.Nil(t, h.sess.Form)

	out = h.send("/node", "statement: a second seed", "/seed")
	assert.Contains(t, out.Texts(), `node created: FN-RN.001 "a second seed"`)
	assert.Contains(t, out.Texts(), "your node is in draft state. add sources to ground it.")

	nodes := h.nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, models.StatusGrounded, nodes[0].Status)
	assert.Equal(t, "maya", nodes[0].Author)
	assert.Equal(t, "feeds decide what we like", nodes[0].Thought)
	assert.Equal(t, models.RawSystemContext, nodes[0].SystemContext)
	assert.Equal(t, "https://example.org/taste", nodes[0].Origin.Description)
	assert.Equal(t, models.StatusDraft, nodes[1].Status)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.NodesCreated))
}

func TestSeedWithoutStatementDoesNotWrite(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.sess.Stage = command.StageLineage

	out := h.send("/node", "description: only context", "/seed")
	assert.Equal(t, command.StageCreateNode, out.Stage)
	assert.Contains(t, out.Texts(), "add a statement first: statement: [your idea]")
	assert.Empty(t, h.nodes())
}

func TestFormValidation(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.sess.Stage = command.StageLineage
	h.send("/node")

	long := make([]rune, maxDescription+1)
	for i := range long {
		long[i] = 'x'
	}
	out := h.send("description: " + string(long))
	assert.Contains(t, out.Texts(), "description must be 1000 characters or fewer.")
	assert.Empty(t, h.sess.Form.Description)

	out = h.send("remove: 3")
	assert.Contains(t, out.Texts(), "no such source. use its number or exact url.")

	out = h.send("what is this")
	assert.Contains(t, out.Texts(), "use the form above to create your node, or /cancel to go back.")

	out = h.send("title: titles work too")
	assert.Contains(t, out.Texts(), "statement: titles work too")
}

func TestStorageFailureKeepsStage(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.sess.Stage = command.StageLineage
	h.send("/node", "statement: will not land")
	before := testutil.ToFloat64(metrics.StorageErrors)

	h.backing.failWrites.Store(true)
	out := h.send("/seed")

	assert.Equal(t, command.StageCreateNode, out.Stage)
	assert.Equal(t, command.StageCreateNode, h.sess.Stage)
	assert.Contains(t, out.Texts(), storageFailure)
	require.NotNil(t, h.sess.Form)
	assert.Equal(t, "will not land", h.sess.Form.Statement)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StorageErrors))

	h.backing.failWrites.Store(false)
	out = h.send("/seed")
	assert.Equal(t, command.StageLineage, out.Stage)
	assert.Len(t, h.nodes(), 1)
}

func TestReflectLinkAndTend(t *testing.T) {
	h := newHarness(t)
	h.register("maya", "secret")
	h.send("/join", "maya", "secret")
	require.Equal(t, command.StageReflect, h.sess.Stage)

	out := h.send("short")
	assert.Contains(t, out.Texts(), "noted. keep writing, or type /link when the thought is ready.")

	out = h.send("/link")
	assert.Equal(t, command.StageReflect, out.Stage)
	assert.Contains(t, out.Texts(), "add a bit more before linking (~10+ chars).")

	h.send("care is a form of maintenance")
	out = h.send("/link")
	assert.Equal(t, command.StageLink, out.Stage)
	assert.Contains(t, out.Texts(), "link recorded. thank you for tending the field.")
	assert.Contains(t, out.Texts(), "reflection saved as FN-RF.000.")
	assert.Empty(t, h.sess.Draft)

	out = h.send("/tend")
	assert.Equal(t, command.StageTend, out.Stage)
	assert.Contains(t, out.Texts(), "tending FN-RF.000")

	out = h.send("source: https://example.org/maintenance")
	assert.Contains(t, out.Texts(), "source added: https://example.org/maintenance")
	out = h.send("note: read alongside the repair manuals")
	assert.Contains(t, out.Texts(), "care-note added: read alongside the repair manuals")
	out = h.send("something else")
	assert.Contains(t, out.Texts(), "format: source: [url] or note: [your note] or /done")

	out = h.send("/done")
	assert.Equal(t, command.StageLink, out.Stage)
	assert.Contains(t, out.Texts(), "tending complete. node maintained.")

	n, err := h.store.GetNode(context.Background(), "FN-RF.000")
	require.NoError(t, err)
	assert.Equal(t, "short", n.Title)
	assert.Equal(t, "short\ncare is a form of maintenance", n.Thought)
	assert.Equal(t, models.StatusGrounded, n.Status)
	require.Len(t, n.Artifacts, 1)
	assert.Equal(t, "https://example.org/maintenance", n.Artifacts[0].URL)
	require.NotNil(t, n.ReviewMetadata)
	assert.Equal(t, "read alongside the repair manuals", n.ReviewMetadata.ReviewComment)
	assert.Equal(t, "maya", n.ReviewMetadata.ReviewerHandle)
}

func TestRoleAndStewardDashboard(t *testing.T) {
	h := newHarness(t)
	h.register("maya", "secret")
	h.send("/join", "maya", "secret")
	h.seedNode("a node to count")

	out := h.send("/steward")
	assert.Equal(t, command.StageReflect, out.Stage)
	assert.Contains(t, out.Texts(), "the steward dashboard is open to stewards only.")

	out = h.send("role: gardener")
	assert.Contains(t, out.Texts(), "choose: observer · builder · reflector · steward")

	out = h.send("ROLE: Steward")
	assert.Contains(t, out.Texts(), "role recorded: steward")
	assert.Equal(t, models.RoleSteward, h.sess.Identity.Role)
	assert.True(t, h.sess.Identity.Permissions.CanArchiveNodes)
	u, err := h.store.GetUser(context.Background(), "maya")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSteward, u.Role)

	out = h.send("role: observer")
	assert.Contains(t, out.Texts(), "role already recorded: steward")

	out = h.send("/steward")
	assert.Equal(t, command.StageStewardDashboard, out.Stage)
	assert.Contains(t, out.Texts(), "nodes: 1 · fields: 5 · users: 1")

	out = h.send("/back")
	assert.Equal(t, command.StageReflect, out.Stage)
}

func TestBrowseListsAndOpensNodes(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = models.Guest()
	h.sess.Stage = command.StageLineage

	out := h.send("/browse")
	assert.Equal(t, command.StageBrowseNodes, out.Stage)
	assert.Contains(t, out.Texts(), "no nodes found yet.")
	out = h.send("1")
	assert.Contains(t, out.Texts(), "there are no nodes to open yet.")

	for i := range 12 {
		h.seedNode(fmt.Sprintf("node %02d", i))
	}
	out = h.send("/back", "/browse")
	assert.Contains(t, out.Texts(), "found 12 nodes in the field:")
	assert.Contains(t, out.Texts(), "[1] node 00 [draft] by @maya (0 connections)")
	assert.Contains(t, out.Texts(), "[10] node 09 [draft] by @maya (0 connections)")
	assert.NotContains(t, out.Texts(), "[11] node 10 [draft] by @maya (0 connections)")
	assert.Contains(t, out.Texts(), "... and 2 more")

	out = h.send("13")
	assert.Contains(t, out.Texts(), "no node numbered 13. choose 1-12.")

	out = h.send("12")
	assert.Equal(t, command.StageNodeDetail, out.Stage)
	require.NotNil(t, h.sess.Current)
	assert.Equal(t, "FN-RN.011", h.sess.Current.ID)
	assert.Contains(t, out.Texts(), `FN-RN.011 · "node 11"`)

	out = h.send("/link FN-RN.000")
	assert.Contains(t, out.Texts(), "guests can only browse. create an account to write and create.")
	n, err := h.store.GetNode(context.Background(), "FN-RN.011")
	require.NoError(t, err)
	assert.Empty(t, n.Connections)

	out = h.send("/edit")
	assert.Contains(t, out.Texts(), "node editing coming soon.")

	out = h.send("/back")
	assert.Equal(t, command.StageBrowseNodes, out.Stage)
	out = h.send("/search")
	assert.Contains(t, out.Texts(), "search functionality coming soon.")
}

func TestLinkFromNodeDetail(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	h.seedNode("first")
	h.seedNode("second")
	h.sess.Stage = command.StageLineage
	h.send("/browse", "1")
	require.Equal(t, command.StageNodeDetail, h.sess.Stage)
	before := testutil.ToFloat64(metrics.ConnectionsCreated)

	cases := []struct {
		input string
		want  string
	}{
		{"/link", "usage: /link FN-XX.NNN [expands|supports|revises|situates|verifies|challenges]"},
		{"/link FN-RN.000", "a node cannot connect to itself."},
		{"/link FN-RN.404", "no node FN-RN.404 in the field."},
		{"/link FN-RN.001 befriends", "relationship must be one of: expands|supports|revises|situates|verifies|challenges"},
		{"/link fn-rn.001 supports", "connected FN-RN.000 ↔ FN-RN.001 (supports)"},
		{"/link FN-RN.001", "FN-RN.000 is already connected to FN-RN.001."},
	}
	for _, tc := range cases {
		out := h.send(tc.input)
		assert.Equal(t, command.StageNodeDetail, out.Stage, tc.input)
		assert.Contains(t, out.Texts(), tc.want, tc.input)
	}

	a, err := h.store.GetNode(context.Background(), "FN-RN.000")
	require.NoError(t, err)
	b, err := h.store.GetNode(context.Background(), "FN-RN.001")
	require.NoError(t, err)
	assert.Equal(t, []string{"FN-RN.001"}, a.Connections)
	assert.Equal(t, []string{"FN-RN.000"}, b.Connections)
	assert.Equal(t, []string{"FN-RN.001"}, h.sess.Current.Connections)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ConnectionsCreated))

	out := h.send("/tend")
	assert.Contains(t, out.Texts(), "node tended: FN-RN.000. thank you for caring for the field.")
}

func TestSuggestFromNodeDetail(t *testing.T) {
	h := newHarness(t)
	h.sess.Identity = account("maya")
	ctx := context.Background()
	for _, title := range []string{"community archives as care", "archives of community memory", "unrelated gardening"} {
		h.seedNode(title)
	}
	h.sess.Stage = command.StageLineage
	h.send("/browse", "1")

	out := h.send("/suggest")
	assert.Equal(t, command.StageNodeDetail, out.Stage)
	assert.Contains(t, out.Texts(), "suggested connections:")
	assert.Contains(t, out.Texts(), `  FN-RN.001 "archives of community memory" (shared: archives, community)`)
	assert.Contains(t, out.Texts(), "type /link FN-XX.NNN to connect")

	n, err := h.store.GetNode(ctx, "FN-RN.000")
	require.NoError(t, err)
	assert.Equal(t, []string{"FN-RN.001"}, n.SuggestedConnections)
}

func TestCommandsWithoutSlash(t *testing.T) {
	cases := []struct {
		input string
		from  command.Stage
		want  command.Stage
	}{
		{"node", command.StageOrigin, command.StageCreateNode},
		{"NODE", command.StageOrigin, command.StageCreateNode},
		{"Orient", command.StageOrigin, command.StageOrient},
		{"agree", command.StageCovenant, command.StageIdentify},
		{"home", command.StageTend, command.StageOrigin},
	}
	for _, tc := range cases {
		t.Run(tc.input+"@"+string(tc.from), func(t *testing.T) {
			h := newHarness(t)
			h.sess.Identity = account("maya")
			h.sess.Stage = tc.from

			out := h.send(tc.input)
			assert.Equal(t, tc.want, out.Stage)
		})
	}
}

func TestPasswordMatchingCommandWordIsSecret(t *testing.T) {
	h := newHarness(t)
	h.sess.Stage = command.StageIdentify

	h.send("maya")
	require.True(t, h.sess.SecretInput())

	out := h.send("home")
	assert.Equal(t, command.StageAccountConfirmed, out.Stage)
	assert.Equal(t, "> ••••", out.Lines[0].Text)

	_, err := h.auth.Login(context.Background(), "maya", "home")
	assert.NoError(t, err)
}

func TestUnknownCommandsGetStageHints(t *testing.T) {
	cases := []struct {
		stage command.Stage
		want  string
	}{
		{command.StageOrigin, "type /node to create your first node"},
		{command.StageCovenant, "available: /home · /agree · /policy · /exit"},
		{command.StageOffer, "available: /publish /back"},
		{command.StageReflect, "available: /home · /link · /tend · /explore · /offer · /node · /browse · /help · /steward"},
	}
	for _, tc := range cases {
		t.Run(string(tc.stage), func(t *testing.T) {
			h := newHarness(t)
			h.sess.Identity = account("maya")
			h.sess.Stage = tc.stage

			out := h.send("/bogus")
			assert.Equal(t, tc.stage, out.Stage)
			assert.Equal(t, []string{"> bogus", tc.want}, out.Texts())
		})
	}
}

func TestHelpSections(t *testing.T) {
	h := newHarness(t)

	out := h.send("/help")
	assert.Equal(t, command.StageOrigin, out.Stage)
	assert.Contains(t, out.Texts(), "FIELD NODES HELP SYSTEM")
	assert.Contains(t, out.Texts(), "[1] getting-started")
	assert.Contains(t, out.Texts(), "[5] faq")

	out = h.send("/help 3")
	assert.Contains(t, out.Texts(), "EXAMPLES")
	last, err := h.ui.Get(context.Background(), kv.KeyLastHelp)
	require.NoError(t, err)
	assert.Equal(t, "3", last)

	out = h.send("/help")
	assert.Contains(t, out.Texts(), "last opened: examples. type /help 3 to return")

	out = h.send("/help faq")
	assert.Contains(t, out.Texts(), "FREQUENTLY ASKED QUESTIONS")

	out = h.send("/help 9")
	assert.Contains(t, out.Texts(), `no help section "9". try 1-5 or getting-started, commands, examples, troubleshooting, faq`)
}

// TestRouteTable checks that every suggested command has a route and that a
// successful run of each route lands exactly on its declared stage.
func TestRouteTable(t *testing.T) {
	h := newHarness(t)
	for _, s := range command.Stages() {
		for _, cmd := range command.Commands(s) {
			_, ok := h.m.routes[s][cmd[1:]]
			assert.True(t, ok, "stage %s has no route for %s", s, cmd)
		}
	}

	a := h.seedNode("first")
	h.seedNode("second")
	for stage, routes := range h.m.routes {
		for name, r := range routes {
			t.Run(string(stage)+"/"+name, func(t *testing.T) {
				steward := models.NewAccountIdentity("steward", "id-steward", models.RoleSteward)
				cur := a.Clone()
				sess := &Session{
					Stage:       stage,
					Identity:    steward,
					AccountStep: StepName,
					Draft:       "a reflection that is long enough",
					Form:        &NodeForm{Statement: "a statement"},
					Listing:     []models.Node{a},
					Current:     &cur,
				}
				out := h.m.Handle(context.Background(), sess, "/"+name)
				want := r.to
				if want == "" {
					want = stage
				}
				assert.Equal(t, want, out.Stage)
				assert.Equal(t, want, sess.Stage)
			})
		}
	}
}
