package store

import (
	"slices"
	"strings"

	"github.com/fieldnodes/field-nodes/internal/models"
)

// The helpers below hold the query semantics so both backends agree on them.

func filterNodes(nodes []models.Node, keep func(models.Node) bool) []models.Node {
	out := make([]models.Node, 0, len(nodes))
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

func inField(fieldID string) func(models.Node) bool {
	id := strings.ToLower(fieldID)
	return func(n models.Node) bool {
		for _, t := range n.Tags {
			if strings.Contains(strings.ToLower(t), id) {
				return true
			}
		}
		return strings.Contains(strings.ToLower(n.Origin.Description), id)
	}
}

func matchesQuery(q string) func(models.Node) bool {
	return func(n models.Node) bool { return n.Matches(q) }
}

func hasAnyTag(tags []string) func(models.Node) bool {
	return func(n models.Node) bool {
		for _, want := range tags {
			for _, have := range n.Tags {
				if strings.EqualFold(have, want) {
					return true
				}
			}
		}
		return false
	}
}

// advancedSearch applies query, field, status, author and tags in that order,
// then sorts. An empty SortBy keeps insertion order.
func advancedSearch(nodes []models.Node, opts models.SearchOptions) []models.Node {
	out := filterNodes(nodes, func(models.Node) bool { return true })
	if opts.Query != "" {
		out = filterNodes(out, matchesQuery(opts.Query))
	}
	if opts.Field != "" {
		out = filterNodes(out, func(n models.Node) bool {
			for _, t := range n.Tags {
				if strings.Contains(strings.ToLower(t), strings.ToLower(opts.Field)) {
					return true
				}
			}
			return false
		})
	}
	if opts.Status != "" {
		out = filterNodes(out, func(n models.Node) bool { return n.Status == opts.Status })
	}
	if opts.Author != "" {
		out = filterNodes(out, func(n models.Node) bool { return n.Author == opts.Author })
	}
	if len(opts.Tags) > 0 {
		out = filterNodes(out, hasAnyTag(opts.Tags))
	}
	sortNodes(out, opts.SortBy, opts.SortOrder)
	return out
}

func sortNodes(nodes []models.Node, by models.SortBy, order models.SortOrder) {
	var cmp func(a, b models.Node) int
	switch by {
	case models.SortRecent:
		cmp = func(a, b models.Node) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	case models.SortConnections:
		cmp = func(a, b models.Node) int { return a.ConnectionCount - b.ConnectionCount }
	case models.SortTitle:
		cmp = func(a, b models.Node) int { return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) }
	case models.SortStatus:
		cmp = func(a, b models.Node) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return
	}
	if order == models.SortDesc {
		asc := cmp
		cmp = func(a, b models.Node) int { return asc(b, a) }
	}
	slices.SortStableFunc(nodes, cmp)
}

func computeStats(nodes []models.Node, fields, users int) models.Stats {
	st := models.Stats{
		TotalNodes:  len(nodes),
		TotalFields: fields,
		TotalUsers:  users,
		ByStatus:    make(map[models.NodeStatus]int, len(models.NodeStatuses)),
	}
	for _, s := range models.NodeStatuses {
		st.ByStatus[s] = 0
	}
	total := 0
	for _, n := range nodes {
		st.ByStatus[n.Status]++
		total += n.ConnectionCount
	}
	if len(nodes) > 0 {
		st.AverageConnections = float64(total) / float64(len(nodes))
	}
	return st
}

func computeTypeStats(nodes []models.Node) []models.TypeStats {
	counts := make(map[models.NodeType]int)
	for _, n := range nodes {
		if t, ok := ParseNodeType(n.ID); ok {
			counts[t]++
		}
	}
	out := make([]models.TypeStats, 0, len(models.NodeTypes))
	for _, t := range models.NodeTypes {
		out = append(out, models.TypeStats{Type: t, Name: t.Info().Name, Count: counts[t]})
	}
	return out
}

func addUnique(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func removeID(list []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(s string) bool { return s == id })
}
