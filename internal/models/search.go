package models

// SortBy selects the ordering of advanced search results.
type SortBy string

const (
	SortRecent      SortBy = "recent"
	SortConnections SortBy = "connections"
	SortTitle       SortBy = "title"
	SortStatus      SortBy = "status"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SearchOptions composes filters with AND semantics. Zero values mean "no filter".
type SearchOptions struct {
	Query     string     `json:"query"`
	Field     string     `json:"field,omitempty"`
	Status    NodeStatus `json:"status,omitempty" validate:"omitempty,oneof=draft grounded reviewed canonical needs_revision"`
	Author    string     `json:"author,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	SortBy    SortBy     `json:"sortBy,omitempty" validate:"omitempty,oneof=recent connections title status"`
	SortOrder SortOrder  `json:"sortOrder,omitempty" validate:"omitempty,oneof=asc desc"`
}

// Stats summarizes the store.
type Stats struct {
	TotalNodes         int                `json:"totalNodes"`
	TotalFields        int                `json:"totalFields"`
	TotalUsers         int                `json:"totalUsers"`
	ByStatus           map[NodeStatus]int `json:"byStatus"`
	AverageConnections float64            `json:"averageConnections"`
}

// TypeStats counts nodes of one type.
type TypeStats struct {
	Type  NodeType `json:"type"`
	Name  string   `json:"name"`
	Count int      `json:"count"`
}

// Snapshot is the full export/import document.
type Snapshot struct {
	Nodes      []Node        `json:"nodes"`
	Fields     []Field       `json:"fields"`
	Users      []User        `json:"users"`
	Counters   []NodeCounter `json:"node_counters"`
	ExportedAt string        `json:"exportedAt,omitempty"`
}
