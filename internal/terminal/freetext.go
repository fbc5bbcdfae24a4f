package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fieldnodes/field-nodes/internal/command"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

const (
	minName     = 2
	minPassword = 4
)

func (m *Machine) buildFreeText() map[command.Stage]handler {
	return map[command.Stage]handler{
		command.StageIdentify:         m.identifyText,
		command.StageLogin:            m.loginText,
		command.StageAccountConfirmed: m.confirmedText,
		command.StageReflect:          m.reflectText,
		command.StageTend:             m.tendText,
		command.StageCreateNode:       m.formText,
		command.StageBrowseNodes:      m.browseText,
	}
}

// cutPrefixFold is strings.CutPrefix ignoring the case of prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// identifyText walks account creation: a name, then a password.
func (m *Machine) identifyText(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	switch sess.AccountStep {
	case StepName:
		name := cmd.Text
		if utf8.RuneCountInString(name) < minName {
			o.muted("please provide a name (2+ characters)")
			return nil
		}
		if reservedName(name) {
			o.muted("that name is reserved. choose a name with letters or numbers.")
			return nil
		}
		sess.pendingName = name
		sess.AccountStep = StepPassword
		showPassword(o, name)
		return nil
	case StepPassword:
		if utf8.RuneCountInString(cmd.Text) < minPassword {
			o.muted("password must be at least 4 characters")
			return nil
		}
		u, err := m.auth.Register(ctx, sess.pendingName, cmd.Text)
		if errors.Is(err, ErrUserExists) {
			sess.AccountStep = StepName
			o.muted(fmt.Sprintf("the name %s is taken. choose another, or use /login.", sess.pendingName))
			sess.pendingName = ""
			return nil
		}
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		m.logger.Info("terminal: account created", "user", u.Username)
		sess.Identity = models.NewAccountIdentity(u.Username, u.ID, u.Role)
		sess.AccountStep = StepComplete
		sess.pendingName = ""
		showAccountConfirmed(sess, o)
		return nil
	}
	m.hint(sess.Stage, o)
	return nil
}

// loginText walks sign-in: a username, then a password checked by the
// authenticator.
func (m *Machine) loginText(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	if sess.AccountStep != StepPassword {
		name := cmd.Text
		if utf8.RuneCountInString(name) < minName {
			o.muted("please provide a username (2+ characters)")
			return nil
		}
		sess.pendingName = name
		sess.AccountStep = StepPassword
		o.plain("username: " + name)
		o.plain("password:")
		return nil
	}
	if utf8.RuneCountInString(cmd.Text) < minPassword {
		o.muted("password must be at least 4 characters")
		return nil
	}
	u, err := m.auth.Login(ctx, sess.pendingName, cmd.Text)
	if errors.Is(err, ErrInvalidCredentials) {
		sess.AccountStep = StepName
		sess.pendingName = ""
		o.muted("invalid username or password.")
		o.muted("type your username to try again.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	sess.Identity = models.NewAccountIdentity(u.Username, u.ID, u.Role)
	sess.AccountStep = StepComplete
	sess.pendingName = ""
	sess.Stage = command.StageReflect
	o.plain("welcome back, " + u.Username)
	o.plain("you are now connected to the field")
	o.accent("available actions: /reflect · /link · /tend · /explore")
	return nil
}

func (m *Machine) confirmedText(_ context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	if cmd.Text == "" {
		showExploration(sess, o)
		return nil
	}
	m.hint(sess.Stage, o)
	return nil
}

// reflectText records a role once, then collects draft text for /link.
func (m *Machine) reflectText(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	if cmd.Text == "" {
		return nil
	}
	if !m.permitted(sess, capWrite, o) {
		return nil
	}
	if rest, ok := cutPrefixFold(cmd.Text, "role:"); ok {
		if sess.Identity.Role != "" {
			o.muted(fmt.Sprintf("role already recorded: %s", sess.Identity.Role))
			return nil
		}
		role, ok := models.ParseRole(rest)
		if !ok {
			o.muted("choose: observer · builder · reflector · steward")
			return nil
		}
		if err := m.saveRole(ctx, sess.Identity.Name, role); err != nil {
			return fmt.Errorf("record role: %w", err)
		}
		sess.Identity.SetRole(role)
		o.plain("role recorded: " + string(role))
		o.muted("you may now tend your node with context.")
		return nil
	}
	if sess.Draft == "" {
		sess.Draft = cmd.Text
	} else {
		sess.Draft += "\n" + cmd.Text
	}
	o.muted("noted. keep writing, or type /link when the thought is ready.")
	return nil
}

// saveRole stores the role on the user profile. Identities without a stored
// profile keep the role for the session only.
func (m *Machine) saveRole(ctx context.Context, name string, role models.Role) error {
	u, err := m.store.GetUser(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	u.Role = role
	return m.store.SaveUser(ctx, u)
}

func (m *Machine) tendText(_ context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	if src, ok := cutPrefixFold(cmd.Text, "source:"); ok && src != "" {
		sess.Sources = append(sess.Sources, src)
		o.plain("source added: " + src)
		o.muted("add another source or note, or type /done to finish")
		return nil
	}
	if note, ok := cutPrefixFold(cmd.Text, "note:"); ok && note != "" {
		sess.Notes = append(sess.Notes, note)
		o.plain("care-note added: " + note)
		o.muted("add another source or note, or type /done to finish")
		return nil
	}
	m.hint(sess.Stage, o)
	return nil
}

// formText edits the node form. Every change is autosaved for guests.
func (m *Machine) formText(ctx context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	if sess.Form == nil {
		sess.Form = &NodeForm{}
	}
	f := sess.Form
	text := cmd.Text

	statement, isStatement := cutPrefixFold(text, "statement:")
	if !isStatement {
		statement, isStatement = cutPrefixFold(text, "title:")
	}
	switch {
	case isStatement:
		if utf8.RuneCountInString(statement) > maxStatement {
			o.muted(fmt.Sprintf("statement must be %d characters or fewer.", maxStatement))
			return nil
		}
		f.Statement = statement
	case strings.HasPrefix(strings.ToLower(text), "description:"):
		desc, _ := cutPrefixFold(text, "description:")
		if utf8.RuneCountInString(desc) > maxDescription {
			o.muted(fmt.Sprintf("description must be %d characters or fewer.", maxDescription))
			return nil
		}
		f.Description = desc
	case strings.HasPrefix(strings.ToLower(text), "source:"):
		src, _ := cutPrefixFold(text, "source:")
		if !f.AddSource(src) {
			o.muted("that source is empty or already added.")
			return nil
		}
	case strings.HasPrefix(strings.ToLower(text), "remove:"):
		ref, _ := cutPrefixFold(text, "remove:")
		if _, ok := f.RemoveSource(ref); !ok {
			o.muted("no such source. use its number or exact url.")
			return nil
		}
	default:
		m.hint(sess.Stage, o)
		return nil
	}

	m.saveDraft(ctx, sess)
	o.Lines = append(o.Lines, f.lines(!sess.Guest())...)
	return nil
}

// browseText opens the node with the given list number.
func (m *Machine) browseText(_ context.Context, sess *Session, cmd command.Resolution, o *Output) error {
	i, err := strconv.Atoi(cmd.Text)
	if err != nil {
		m.hint(sess.Stage, o)
		return nil
	}
	if i < 1 || i > len(sess.Listing) {
		if len(sess.Listing) == 0 {
			o.muted("there are no nodes to open yet.")
		} else {
			o.muted(fmt.Sprintf("no node numbered %d. choose 1-%d.", i, len(sess.Listing)))
		}
		return nil
	}
	showNodeDetail(sess, o, sess.Listing[i-1])
	return nil
}
