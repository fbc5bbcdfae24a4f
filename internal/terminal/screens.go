package terminal

import (
	"fmt"
	"strings"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/models"
)

const (
	boxBottom   = "└───────────────────────────────────────────────────┘"
	browseLimit = 10
)

var bootLines = []Line{
	{Text: "guest@fieldnodes:~FIELD", Kind: KindPrompt},
	{Text: "welcome to a space where thoughts connect", Kind: KindHero},
	{Text: "where ideas grow through relation, not competition", Kind: KindHero},
	{Text: "this is not about being seen", Kind: KindHero},
	{Text: "it's about listening, tending, belonging", Kind: KindHero},
	{Text: "> type /node to create your first node", Kind: KindMuted},
	{Text: "> type /browse to explore existing nodes", Kind: KindMuted},
	{Text: "> type /orient to learn more about the system", Kind: KindMuted},
}

// BootLines returns the greeting shown at origin.
func BootLines() []Line {
	return append([]Line(nil), bootLines...)
}

// screen replaces the output with a titled box followed by an accent prompt.
func screen(o *Output, title, content, prompt string) {
	o.reset()
	o.plain("┌─ " + title + " ─────────────────────────────────────────┐")
	o.plain(content)
	o.plain(boxBottom)
	o.accent(prompt)
}

func showBoot(sess *Session, o *Output) {
	sess.Stage = command.StageOrigin
	o.reset()
	o.Lines = append(o.Lines, bootLines...)
}

const orientContent = `welcome to FIELD NODES
──────────────────────────────────────────────
a shared environment for collaborative thinking
each idea lives as a node—connected, editable,
and part of a collective field of knowledge
──────────────────────────────────────────────

📖 ABOUT
Field Nodes is not social media or a feed.
It's a collaborative workspace where participants
create, connect, and care for ideas.
You can explore existing nodes, add your own,
or reflect on others.

🧭 BASIC COMMANDS
   /orient     see this guide again
   /explore    browse existing fields and nodes
   /help       list all available commands

💡 BEST PRACTICES
   • move slowly — context matters
   • listen before adding
   • name things clearly so others can find them
   • credit existing connections when you extend them`

func showOrient(sess *Session, o *Output) {
	sess.Stage = command.StageOrient
	screen(o, "ORIENTATION", orientContent, "press Enter to continue or /explore to skip")
}

const covenantContent = `Before joining, review our shared principles:

• Knowledge here is collective, additive, and attributed.
• We design for care, not competition.
• Contributions can be linked, forked, and preserved with credit.
• We honor pacing, rest, and context.
• We reject harassment, extraction, and scarcity.

To participate, you must agree to uphold these values.`

func showCovenant(sess *Session, o *Output) {
	sess.Stage = command.StageCovenant
	screen(o, "FIELD NODES COVENANT", covenantContent, "type /agree to continue or /policy to review terms")
}

const identifyContent = `to write and create in the field, you need an account:

choose a name: [type below]
choose a password: [type below]

Already have an account? type /login
Want to browse first? type /guest`

func showIdentify(sess *Session, o *Output) {
	sess.Stage = command.StageIdentify
	sess.AccountStep = StepName
	sess.pendingName = ""
	screen(o, "ACCOUNT CREATION", identifyContent, "type your name below:")
}

func showPassword(o *Output, name string) {
	content := fmt.Sprintf(`account creation in progress...

name: %s ✓
password: [type below]

choose a secure password (minimum 4 characters)`, name)
	screen(o, "PASSWORD SETUP", content, "type your password:")
}

func showAccountConfirmed(sess *Session, o *Output) {
	sess.Stage = command.StageAccountConfirmed
	content := fmt.Sprintf(`account created successfully!

welcome, %s@fieldnodes
your space has been initialized

STATE: exploring
MODE: collective
DATA: local-first sync ON

ready when you are.`, sess.Handle())
	screen(o, "ACCOUNT CONFIRMED", content, "press Enter to begin exploring")
}

func showLogin(sess *Session, o *Output) {
	sess.Stage = command.StageLogin
	sess.AccountStep = StepName
	sess.pendingName = ""
	screen(o, "LOGIN", "do you have an account?\n\njust type your username below:", "type your username:")
}

func showExploration(sess *Session, o *Output) {
	sess.Stage = command.StageLineage
	content := fmt.Sprintf(`┌─ EXPLORATION MODE ──────────────────────────┐
│  welcome to the field of collaborative     │
│  thinking and knowledge building            │
└─────────────────────────────────────────────┘

📍 YOU ARE HERE
   %s@fieldnodes
   STATE: exploring | MODE: collective

💡 TIP
   create nodes to start building the field
   every node needs evidence — links, images, videos, or files`, sess.Handle())
	screen(o, "EXPLORATION MODE", content, "type /node to create your first node, or /lineage to explore fields")
}

func showBrowse(sess *Session, o *Output, nodes []models.Node) {
	sess.Stage = command.StageBrowseNodes
	sess.Listing = nodes
	sess.Current = nil
	if len(nodes) == 0 {
		screen(o, "BROWSE NODES", `no nodes found yet.

create the first node to start building the field.

every node needs evidence — links, images, videos, or files.`, "type /node to create the first node")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "found %d nodes in the field:\n\n", len(nodes))
	for i, n := range nodes {
		if i == browseLimit {
			break
		}
		fmt.Fprintf(&b, "%s\n", browseEntry(i+1, n))
	}
	if len(nodes) > browseLimit {
		fmt.Fprintf(&b, "\n... and %d more\n", len(nodes)-browseLimit)
	}
	b.WriteString("\ntype a node number to view details")
	screen(o, "BROWSE NODES", b.String(), "type node number to view, /node to create, or /back to return")
}

func browseEntry(i int, n models.Node) string {
	return fmt.Sprintf("[%d] %s [%s] by @%s (%d connections)", i, n.Title, n.Status, n.Author, n.ConnectionCount)
}

func showNodeDetail(sess *Session, o *Output, n models.Node) {
	sess.Stage = command.StageNodeDetail
	sess.Current = &n

	var b strings.Builder
	fmt.Fprintf(&b, "%s · %q\n", n.ID, n.Title)
	fmt.Fprintf(&b, "status: %s · by @%s\n", n.Status, n.Author)
	if !n.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "created: %s\n", n.CreatedAt.Format("2006-01-02"))
	}
	if n.Thought != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Thought)
	}
	b.WriteString("\nsources:\n")
	if len(n.Artifacts) == 0 {
		b.WriteString("  none yet. this node is a draft until it is grounded.\n")
	}
	for _, a := range n.Artifacts {
		fmt.Fprintf(&b, "  • %s\n", a.URL)
	}
	if len(n.Connections) > 0 {
		fmt.Fprintf(&b, "\nconnections: %s", strings.Join(n.Connections, ", "))
	} else {
		b.WriteString("\nconnections: none yet")
	}
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "\ntags: %s", strings.Join(n.Tags, ", "))
	}
	screen(o, "NODE DETAIL", b.String(), "type /link FN-XX.NNN to connect, /suggest for ideas, or /back to return")
}
