package models

// Field is a thematic cluster of nodes, matched loosely by tag or origin text.
type Field struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	NodeCount   int      `json:"nodeCount"`
	Tags        []string `json:"tags"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
}

// DefaultFields are seeded when no fields have been stored yet.
func DefaultFields() []Field {
	return []Field{
		{ID: "system_design", Name: "System Design", Description: "Designing systems for care and collaboration", NodeCount: 14, Tags: []string{"systems", "design", "collaboration"}, Color: "#8B5CF6"},
		{ID: "feminist_theory", Name: "Feminist Theory", Description: "Feminist perspectives on technology and society", NodeCount: 22, Tags: []string{"feminism", "theory", "technology"}, Color: "#EC4899"},
		{ID: "mutual_aid", Name: "Mutual Aid", Description: "Community care and mutual support systems", NodeCount: 17, Tags: []string{"mutual-aid", "community", "care"}, Color: "#10B981"},
		{ID: "archiving", Name: "Archiving", Description: "Preserving and organizing knowledge", NodeCount: 10, Tags: []string{"archiving", "preservation", "knowledge"}, Color: "#F59E0B"},
		{ID: "infrastructure", Name: "Infrastructure", Description: "Building sustainable technical infrastructure", NodeCount: 8, Tags: []string{"infrastructure", "sustainability", "technology"}, Color: "#3B82F6"},
	}
}
