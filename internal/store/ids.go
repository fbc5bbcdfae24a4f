package store

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fieldnodes/field-nodes/internal/models"
)

var nodeIDPattern = regexp.MustCompile(`^FN-([A-Z]{2})\.(\d+)$`)

// FormatNodeID renders the ID for sequence n of type t, e.g. FN-RN.003.
func FormatNodeID(t models.NodeType, n int) string {
	return fmt.Sprintf("FN-%s.%03d", t, n)
}

// ParseNodeType extracts the type code from an ID of the form FN-XX.nnn.
func ParseNodeType(id string) (models.NodeType, bool) {
	m := nodeIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return models.NodeType(m[1]), true
}

func parseNodeSeq(id string) (int, bool) {
	m := nodeIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

// counterFor returns the current count for typ; -1 when the type is new.
func counterFor(counters []models.NodeCounter, typ models.NodeType) int {
	for _, c := range counters {
		if c.Type == typ {
			return c.CurrentCount
		}
	}
	return -1
}

func setCounter(counters []models.NodeCounter, typ models.NodeType, v int) []models.NodeCounter {
	for i := range counters {
		if counters[i].Type == typ {
			counters[i].CurrentCount = v
			return counters
		}
	}
	return append(counters, models.NodeCounter{Type: typ, CurrentCount: v})
}

// recomputeCounters derives counters from the nodes present. The value is
// count-1, raised to the highest sequence in use so a resync after deletions
// can never hand out an ID that still exists.
func recomputeCounters(nodes []models.Node) []models.NodeCounter {
	counts := make(map[models.NodeType]int)
	highest := make(map[models.NodeType]int)
	for _, n := range nodes {
		t, ok := ParseNodeType(n.ID)
		if !ok {
			continue
		}
		counts[t]++
		if seq, ok := parseNodeSeq(n.ID); ok && seq > highest[t] {
			highest[t] = seq
		}
	}
	var out []models.NodeCounter
	for _, t := range models.NodeTypes {
		c, ok := counts[t]
		if !ok {
			continue
		}
		v := c - 1
		if highest[t] > v {
			v = highest[t]
		}
		out = append(out, models.NodeCounter{Type: t, CurrentCount: v})
	}
	return out
}
