package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fieldnodes/field-nodes/internal/metrics"
	"github.com/fieldnodes/field-nodes/internal/models"
	"github.com/fieldnodes/field-nodes/internal/store"
)

// DefaultStaleAfter is how long a node may go untended before it is reported.
const DefaultStaleAfter = 30 * 24 * time.Hour

// Report summarizes the results of a tending pass.
type Report struct {
	Reciprocated int      `json:"reciprocated"`
	Dangling     int      `json:"dangling"`
	Suggestions  int      `json:"suggestions"`
	Ungrounded   int      `json:"ungrounded"`
	Recounted    int      `json:"recounted"`
	Saved        int      `json:"saved"`
	Resynced     bool     `json:"resynced"`
	Stale        []string `json:"stale"`
}

// Repairs is the number of individual fixes found.
func (r *Report) Repairs() int {
	return r.Reciprocated + r.Dangling + r.Suggestions + r.Ungrounded + r.Recounted
}

// Manager tends the stored graph: it restores the invariants every write
// path is supposed to keep, for data imported or edited outside them.
type Manager struct {
	store      store.NodeStore
	logger     *slog.Logger
	now        func() time.Time
	staleAfter time.Duration
}

// NewManager creates a new tending manager.
func NewManager(st store.NodeStore, logger *slog.Logger) *Manager {
	return &Manager{
		store:      st,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		staleAfter: DefaultStaleAfter,
	}
}

// Run executes one tending pass. With dryRun nothing is written and the
// report lists what would change.
func (m *Manager) Run(ctx context.Context, dryRun bool) (*Report, error) {
	nodes, err := m.store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	report := &Report{Stale: []string{}}
	byID := make(map[string]*models.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}
	changed := make(map[string]bool)

	// 1. Dangling connections and suggestions.
	for i := range nodes {
		n := &nodes[i]
		kept := slices.DeleteFunc(slices.Clone(n.Connections), func(id string) bool {
			_, ok := byID[id]
			return !ok || id == n.ID
		})
		if d := len(n.Connections) - len(kept); d > 0 {
			m.logger.Info("dropping dangling connections", "id", n.ID, "count", d)
			report.Dangling += d
			n.Connections = kept
			changed[n.ID] = true
		}
		sugg := slices.DeleteFunc(slices.Clone(n.SuggestedConnections), func(id string) bool {
			_, ok := byID[id]
			return !ok || id == n.ID || n.HasConnection(id)
		})
		if d := len(n.SuggestedConnections) - len(sugg); d > 0 {
			report.Suggestions += d
			n.SuggestedConnections = sugg
			changed[n.ID] = true
		}
	}

	// 2. Reciprocity: every connection is listed on both ends.
	for i := range nodes {
		a := &nodes[i]
		for _, id := range a.Connections {
			b := byID[id]
			if b.HasConnection(a.ID) {
				continue
			}
			m.logger.Info("restoring reciprocal connection", "from", b.ID, "to", a.ID)
			b.Connections = append(b.Connections, a.ID)
			report.Reciprocated++
			changed[b.ID] = true
		}
	}

	// 3. Grounding and cached counts.
	for i := range nodes {
		n := &nodes[i]
		if n.Status == models.StatusGrounded && len(n.Artifacts) == 0 {
			m.logger.Info("demoting ungrounded node", "id", n.ID)
			n.Status = models.StatusDraft
			report.Ungrounded++
			changed[n.ID] = true
		}
		if n.ConnectionCount != len(n.Connections) {
			n.ConnectionCount = len(n.Connections)
			report.Recounted++
			changed[n.ID] = true
		}
		if !n.LastTended.IsZero() && m.now().Sub(n.LastTended) > m.staleAfter {
			report.Stale = append(report.Stale, n.ID)
		}
	}

	if dryRun {
		return report, nil
	}

	for i := range nodes {
		if !changed[nodes[i].ID] {
			continue
		}
		if err := m.store.SaveNode(ctx, nodes[i]); err != nil {
			return report, fmt.Errorf("saving %s: %w", nodes[i].ID, err)
		}
		report.Saved++
	}

	if err := m.store.ResyncCounters(ctx); err != nil {
		return report, fmt.Errorf("resyncing counters: %w", err)
	}
	report.Resynced = true
	m.record(report)
	return report, nil
}

func (m *Manager) record(r *Report) {
	for kind, n := range map[string]int{
		"reciprocity": r.Reciprocated,
		"dangling":    r.Dangling,
		"suggestion":  r.Suggestions,
		"grounding":   r.Ungrounded,
		"count":       r.Recounted,
	} {
		if n > 0 {
			metrics.TendRepairs.WithLabelValues(kind).Add(float64(n))
		}
	}
}
