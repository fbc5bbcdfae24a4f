package terminal

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldnodes/field-nodes/internal/kv"
)

type helpSection struct {
	id      string
	title   string
	content string
}

const helpRule = "──────────────────────────────────────────────"

var helpSections = []helpSection{
	{id: "getting-started", title: "GETTING STARTED", content: `BASIC WORKFLOW:
1. Type /node to create your first Raw Node
2. Fill in statement, description, and sources
3. Type /browse to see all nodes
4. Type /help anytime for this guide

QUICK COMMANDS:
/node       → Create a new Raw Node
/browse     → View all existing nodes
/orient     → See the system introduction
/help       → Show this help system

WHAT IS A RAW NODE?
A Raw Node is a single, focused idea or observation.
Think of it as a "seed" that can grow into connections.

Example Raw Node:
Statement: "Algorithms as curators of taste"
Description: "This TikTok reframed aesthetic judgment..."
Sources: "hktok.com/.123"`},
	{id: "commands", title: "ALL COMMANDS", content: `NAVIGATION:
/orient     → System introduction and guide
/explore    → Browse existing fields and nodes
/help       → Show this help system
/back       → Return to previous screen
/home       → Return to the start

NODE CREATION:
/node       → Create a new Raw Node
/browse     → View all existing nodes
/search     → Find specific nodes (coming soon)
/filter     → Filter nodes by criteria (coming soon)

NODE MANAGEMENT:
/link       → Connect nodes together
/suggest    → Suggest connections for a node
/tend       → Review and maintain nodes
/edit       → Modify existing nodes (coming soon)

ACCOUNT:
/login      → Access your account
/guest      → Continue as read-only guest`},
	{id: "examples", title: "EXAMPLES", content: `EXAMPLE 1: Creating a Raw Node
> /node
statement: Social media algorithms shape taste
description: Platforms curate what we see, influencing...
source: https://example.org/research-paper.pdf
> /seed

EXAMPLE 2: Browsing Nodes
> /browse
[Shows list of all nodes]
Type a node number to view details

EXAMPLE 3: Connecting Nodes
> /link FN-RN.002 supports
Both nodes now list each other

EXAMPLE 4: System Introduction
> /orient
Learn about the system and best practices

WHAT MAKES A GOOD RAW NODE?
• One clear idea or observation
• Grounded in evidence or experience
• Specific enough to be useful
• Broad enough to connect to other ideas`},
	{id: "troubleshooting", title: "TROUBLESHOOTING", content: `COMMON ISSUES:

Q: I typed /node but nothing happened
A: Make sure you're in the right stage. Try /orient first.

Q: I can't see my nodes after creating them
A: Type /browse to view all your nodes.

Q: I'm stuck in a form
A: Type /cancel to leave the node form.

Q: I forgot what commands are available
A: Type / and press Tab, or /help to see this guide.

STILL STUCK?
• Type /orient to restart the introduction
• Type /home to return to the start
• Check that you're typing commands correctly`},
	{id: "faq", title: "FREQUENTLY ASKED QUESTIONS", content: `Q: What is a Raw Node?
A: A single, focused idea or observation. Think of it as
   a "seed" that can grow into connections with other ideas.

Q: How do I create my first node?
A: Type /node, then fill in the form with a statement,
   description, and sources.

Q: Why is my node a draft?
A: A node is grounded only when it has at least one source.

Q: What if I get lost?
A: Type /help anytime to see this guide, or /orient to
   restart the introduction.

Q: Is this like social media?
A: No, this is for collaborative thinking and knowledge
   building. No likes, follows, or viral content.`},
}

// findHelp resolves a 1-based number or a section id.
func findHelp(arg string) (int, bool) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if n, err := strconv.Atoi(arg); err == nil {
		return n, n >= 1 && n <= len(helpSections)
	}
	for i, s := range helpSections {
		if s.id == arg {
			return i + 1, true
		}
	}
	return 0, false
}

// help renders the section index or, with an argument, one section.
// Opening a section remembers it for the next index.
func (m *Machine) help(ctx context.Context, args []string, o *Output) {
	if len(args) == 0 {
		o.plain("FIELD NODES HELP SYSTEM")
		o.plain(helpRule)
		for i, s := range helpSections {
			o.plain(fmt.Sprintf("[%d] %s", i+1, s.id))
		}
		o.plain(helpRule)
		if last, err := kv.GetOr(ctx, m.kv, kv.KeyLastHelp, ""); err == nil && last != "" {
			if n, ok := findHelp(last); ok {
				o.muted(fmt.Sprintf("last opened: %s. type /help %d to return", helpSections[n-1].id, n))
			}
		}
		o.accent("type /help N or /help name to open a section")
		return
	}
	n, ok := findHelp(args[0])
	if !ok {
		o.muted(fmt.Sprintf("no help section %q. try 1-%d or getting-started, commands, examples, troubleshooting, faq", args[0], len(helpSections)))
		return
	}
	s := helpSections[n-1]
	o.plain(helpRule)
	o.plain(s.title)
	o.plain(helpRule)
	o.plain(s.content)
	o.plain(helpRule)
	if err := m.kv.Set(ctx, kv.KeyLastHelp, strconv.Itoa(n)); err != nil {
		m.logger.Warn("terminal: saving last help section", "error", err)
	}
}
