package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/models"
)

const (
	maxStatement   = 280
	maxDescription = 1000
)

// NodeForm is the raw node editor: a statement, an optional description and
// any number of distinct sources.
type NodeForm struct {
	Statement   string   `json:"statement"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
}

// Empty reports whether nothing has been entered.
func (f *NodeForm) Empty() bool {
	return f.Statement == "" && f.Description == "" && len(f.Sources) == 0
}

// AddSource appends url unless it is blank or already present.
func (f *NodeForm) AddSource(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || slices.Contains(f.Sources, url) {
		return false
	}
	f.Sources = append(f.Sources, url)
	return true
}

// RemoveSource drops a source by its 1-based position or by exact URL.
func (f *NodeForm) RemoveSource(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if i, err := strconv.Atoi(ref); err == nil {
		if i < 1 || i > len(f.Sources) {
			return "", false
		}
		removed := f.Sources[i-1]
		f.Sources = slices.Delete(f.Sources, i-1, i)
		return removed, true
	}
	i := slices.Index(f.Sources, ref)
	if i < 0 {
		return "", false
	}
	f.Sources = slices.Delete(f.Sources, i, i+1)
	return ref, true
}

// Status is grounded only for an account with at least one source.
func (f *NodeForm) Status(authenticated bool) models.NodeStatus {
	if authenticated && len(f.Sources) > 0 {
		return models.StatusGrounded
	}
	return models.StatusDraft
}

// Node converts the form into a raw node authored by author.
func (f *NodeForm) Node(author string, authenticated bool) models.Node {
	n := models.Node{
		Title:         strings.TrimSpace(f.Statement),
		Thought:       strings.TrimSpace(f.Description),
		Author:        author,
		Status:        f.Status(authenticated),
		SystemContext: models.RawSystemContext,
		Origin:        models.Origin{Type: models.OriginOther, Description: "No source provided"},
	}
	if len(f.Sources) > 0 {
		n.Origin.Description = strings.Join(f.Sources, ", ")
	}
	for _, s := range f.Sources {
		n.Artifacts = append(n.Artifacts, models.Artifact{
			Type:     models.ArtifactURL,
			URL:      s,
			Metadata: &models.ArtifactMetadata{Title: s},
		})
	}
	return n
}

// lines renders the form below the prompt.
func (f *NodeForm) lines(authenticated bool) []Line {
	statement := f.Statement
	if statement == "" {
		statement = "[type statement: your idea]"
	}
	out := []Line{
		{Text: "┌─ RAW NODE ─────────────────────────────────────────┐", Kind: KindPlain},
		{Text: "statement: " + statement, Kind: KindPlain},
	}
	if f.Description != "" {
		out = append(out, Line{Text: fmt.Sprintf("description: %s (%d/%d)", f.Description, utf8.RuneCountInString(f.Description), maxDescription), Kind: KindPlain})
	}
	out = append(out, Line{Text: fmt.Sprintf("sources: %d", len(f.Sources)), Kind: KindPlain})
	for i, s := range f.Sources {
		out = append(out, Line{Text: fmt.Sprintf("  [%d] %s", i+1, s), Kind: KindMuted})
	}
	out = append(out,
		Line{Text: "status: " + string(f.Status(authenticated)), Kind: KindPlain},
		Line{Text: boxBottom, Kind: KindPlain},
	)
	return out
}

const formHelp = "statement: · description: · source: · remove: · /seed · /cancel"

// loadDraft restores a guest's autosaved form. A missing or corrupt draft
// yields an empty form.
func (m *Machine) loadDraft(ctx context.Context) *NodeForm {
	f := &NodeForm{}
	raw, err := m.kv.Get(ctx, kv.KeyRawNodeDraft)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			m.logger.Warn("terminal: reading draft", "error", err)
		}
		return f
	}
	if err := json.Unmarshal([]byte(raw), f); err != nil {
		m.logger.Warn("terminal: discarding unreadable draft", "error", err)
		return &NodeForm{}
	}
	return f
}

// saveDraft persists a guest's form after every change, or removes the
// draft once the form is empty again.
func (m *Machine) saveDraft(ctx context.Context, sess *Session) {
	if !sess.Guest() || sess.Form == nil {
		return
	}
	var err error
	if sess.Form.Empty() {
		err = m.kv.Delete(ctx, kv.KeyRawNodeDraft)
	} else {
		var b []byte
		b, err = json.Marshal(sess.Form)
		if err == nil {
			err = m.kv.Set(ctx, kv.KeyRawNodeDraft, string(b))
		}
	}
	if err != nil {
		m.logger.Warn("terminal: saving draft", "error", err)
	}
}

func (m *Machine) clearDraft(ctx context.Context) {
	if err := m.kv.Delete(ctx, kv.KeyRawNodeDraft); err != nil {
		m.logger.Warn("terminal: clearing draft", "error", err)
	}
}
