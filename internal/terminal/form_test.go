package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldnodes/field-nodes/internal/models"
)

func TestNodeFormSources(t *testing.T) {
	f := &NodeForm{}
	assert.True(t, f.Empty())

	assert.True(t, f.AddSource(" https://a.example "))
	assert.False(t, f.AddSource("https://a.example"), "duplicates are ignored")
	assert.False(t, f.AddSource("   "))
	assert.True(t, f.AddSource("https://b.example"))
	assert.True(t, f.AddSource("https://c.example"))
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, f.Sources)

	removed, ok := f.RemoveSource("2")
	assert.True(t, ok)
	assert.Equal(t, "https://b.example", removed)

	_, ok = f.RemoveSource("https://c.example")
	assert.True(t, ok)
	_, ok = f.RemoveSource("0")
	assert.False(t, ok)
	_, ok = f.RemoveSource("https://nowhere.example")
	assert.False(t, ok)
	assert.Equal(t, []string{"https://a.example"}, f.Sources)
}

func TestNodeFormStatus(t *testing.T) {
	f := &NodeForm{Statement: "x"}
	assert.Equal(t, models.StatusDraft, f.Status(true))

	f.AddSource("https://a.example")
	assert.Equal(t, models.StatusGrounded, f.Status(true))
	assert.Equal(t, models.StatusDraft, f.Status(false))

	f.RemoveSource("1")
	assert.Equal(t, models.StatusDraft, f.Status(true), "removing the last source demotes to draft")
}

func TestNodeFormNode(t *testing.T) {
	f := &NodeForm{Statement: "  care as infrastructure ", Description: "maintenance is work"}
	f.AddSource("https://a.example")
	f.AddSource("https://b.example")

	n := f.Node("maya", true)
	assert.Equal(t, "care as infrastructure", n.Title)
	assert.Equal(t, "maintenance is work", n.Thought)
	assert.Equal(t, "maya", n.Author)
	assert.Equal(t, models.StatusGrounded, n.Status)
	assert.Equal(t, "https://a.example, https://b.example", n.Origin.Description)
	require.Len(t, n.Artifacts, 2)
	assert.Equal(t, models.ArtifactURL, n.Artifacts[0].Type)
	assert.Equal(t, "https://a.example", n.Artifacts[0].Metadata.Title)
	assert.NoError(t, models.Validate(n))

	empty := (&NodeForm{Statement: "bare"}).Node("maya", true)
	assert.Equal(t, "No source provided", empty.Origin.Description)
	assert.Empty(t, empty.Artifacts)
}
