// Package command resolves terminal input against the commands each stage
// permits and computes ghost-text completions.
package command

import "strings"

// Stage is a state of the terminal state machine.
type Stage string

const (
	StageOrigin           Stage = "origin"
	StageOrient           Stage = "orient"
	StageCovenant         Stage = "covenant"
	StageIdentify         Stage = "identify"
	StageLogin            Stage = "login"
	StageLineage          Stage = "lineage"
	StageReflect          Stage = "reflect"
	StageLink             Stage = "link"
	StageTend             Stage = "tend"
	StageOffer            Stage = "offer"
	StageCreateNode       Stage = "create-node"
	StageBrowseNodes      Stage = "browse-nodes"
	StageNodeDetail       Stage = "node-detail"
	StageAccountConfirmed Stage = "account-confirmed"
	StageStewardDashboard Stage = "steward-dashboard"
)

var stages = []Stage{
	StageOrigin, StageOrient, StageCovenant, StageIdentify, StageLogin,
	StageLineage, StageReflect, StageLink, StageTend, StageOffer,
	StageCreateNode, StageBrowseNodes, StageNodeDetail, StageAccountConfirmed,
	StageStewardDashboard,
}

// table lists the permitted commands per stage. Order matters: Suggest
// returns the first prefix match, so the most common action comes first.
var table = map[Stage][]string{
	StageOrigin:           {"/node", "/browse", "/orient", "/home", "/help"},
	StageOrient:           {"/home", "/help", "/explore"},
	StageCovenant:         {"/home", "/agree", "/policy", "/exit"},
	StageIdentify:         {"/home", "/login", "/guest"},
	StageLogin:            {"/home", "/login"},
	StageAccountConfirmed: {"/home", "/explore"},
	StageLineage:          {"/home", "/node", "/browse", "/explore", "/help", "/login"},
	StageReflect:          {"/home", "/link", "/tend", "/explore", "/offer", "/node", "/browse", "/help", "/steward"},
	StageLink:             {"/home", "/tend", "/explore", "/offer", "/node", "/browse", "/help", "/steward"},
	StageTend:             {"/home", "/done", "/help"},
	StageOffer:            {"/home", "/publish", "/back"},
	StageCreateNode:       {"/home", "/cancel"},
	StageBrowseNodes:      {"/home", "/node", "/back", "/search", "/filter", "/help", "/login"},
	StageNodeDetail:       {"/home", "/link", "/tend", "/back", "/edit", "/help"},
	StageStewardDashboard: {"/home", "/back", "/help"},
}

// Stages returns every stage in declaration order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := table[s]
	return ok
}

// Commands returns a copy of the commands permitted in stage.
func Commands(stage Stage) []string {
	cmds := table[stage]
	out := make([]string, len(cmds))
	copy(out, cmds)
	return out
}

// Suggest returns the first permitted command that extends input, or "" when
// input is not a slash command, already complete, or matches nothing.
func Suggest(input string, stage Stage) string {
	if !strings.HasPrefix(input, "/") {
		return ""
	}
	for _, cmd := range table[stage] {
		if strings.HasPrefix(cmd, input) {
			if cmd == input {
				return ""
			}
			return cmd
		}
	}
	return ""
}

// Normalize trims input, drops a single leading slash and lowercases it.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "/")
	return strings.ToLower(s)
}

// Kind classifies a line of input.
type Kind int

const (
	// FreeText is input that names no command; stages may treat it as form input.
	FreeText Kind = iota
	// Command is a command permitted in the stage, with or without its slash.
	Command
	// Unknown is a slash command the stage does not permit.
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case Unknown:
		return "unknown"
	default:
		return "free-text"
	}
}

// Resolution is the classified form of one input line.
type Resolution struct {
	Kind Kind
	// Name is the normalized command word without slash or arguments, e.g. "link".
	Name string
	// Args holds the whitespace-separated words after the command.
	Args []string
	// Text is the trimmed original input.
	Text string
	// Bare is set when a command was typed without its leading slash.
	Bare bool
}

// Resolve classifies raw against the commands stage permits. Only the first
// word is matched, so "/link FN-RN.001 supports" resolves to link with args.
// The slash is optional for a single word: "node" and "NODE" resolve like
// "/node". Longer input without a slash stays free text so that sentences
// starting with a command word reach the stage's text handler.
func Resolve(raw string, stage Stage) Resolution {
	text := strings.TrimSpace(raw)
	fields := strings.Fields(text)
	if !strings.HasPrefix(text, "/") {
		if len(fields) == 1 && permits(stage, Normalize(text)) {
			return Resolution{Kind: Command, Name: Normalize(text), Args: fields[1:], Text: text, Bare: true}
		}
		return Resolution{Kind: FreeText, Text: text}
	}
	name := Normalize(fields[0])
	res := Resolution{Kind: Unknown, Name: name, Args: fields[1:], Text: text}
	if permits(stage, name) {
		res.Kind = Command
	}
	return res
}

func permits(stage Stage, name string) bool {
	for _, cmd := range table[stage] {
		if cmd[1:] == name {
			return true
		}
	}
	return false
}

// Hint renders the stage's command list for "available: ..." messages.
func Hint(stage Stage) string {
	return strings.Join(table[stage], " · ")
}
