package models

import (
	"strings"
	"time"
)

// NodeType is the two-letter taxonomy code embedded in every node ID.
type NodeType string

const (
	NodeTypeRaw        NodeType = "RN"
	NodeTypeContext    NodeType = "CN"
	NodeTypeSupport    NodeType = "SN"
	NodeTypeReflection NodeType = "RF"
	NodeTypeSystem     NodeType = "SY"
)

// NodeTypeInfo describes a node type for display.
type NodeTypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NodeTypes lists every node type in display order.
var NodeTypes = []NodeType{NodeTypeRaw, NodeTypeContext, NodeTypeSupport, NodeTypeReflection, NodeTypeSystem}

var nodeTypeInfo = map[NodeType]NodeTypeInfo{
	NodeTypeRaw:        {Name: "Raw Node", Description: "Foundational thought / observation (atomic)"},
	NodeTypeContext:    {Name: "Context Node", Description: "Expands or annotates a raw node"},
	NodeTypeSupport:    {Name: "Support Node", Description: "External materials (citations, links, evidence)"},
	NodeTypeReflection: {Name: "Reflection Node", Description: "Reflective or meta-analysis note"},
	NodeTypeSystem:     {Name: "System Node", Description: "Internal structure (rules, templates, system definitions)"},
}

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	_, ok := nodeTypeInfo[t]
	return ok
}

// Info returns the display name and description of t.
func (t NodeType) Info() NodeTypeInfo {
	return nodeTypeInfo[t]
}

// NodeStatus tracks a node's progression through curation.
type NodeStatus string

const (
	StatusDraft         NodeStatus = "draft"
	StatusGrounded      NodeStatus = "grounded"
	StatusReviewed      NodeStatus = "reviewed"
	StatusCanonical     NodeStatus = "canonical"
	StatusNeedsRevision NodeStatus = "needs_revision"
)

// NodeStatuses lists all statuses in curation order.
var NodeStatuses = []NodeStatus{StatusDraft, StatusGrounded, StatusReviewed, StatusCanonical, StatusNeedsRevision}

// IsValid reports whether s is a known status.
func (s NodeStatus) IsValid() bool {
	for _, v := range NodeStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ArtifactType is the kind of evidence attached to a node.
type ArtifactType string

const (
	ArtifactURL        ArtifactType = "url"
	ArtifactVideo      ArtifactType = "video"
	ArtifactImage      ArtifactType = "image"
	ArtifactPDF        ArtifactType = "pdf"
	ArtifactScreenshot ArtifactType = "screenshot"
)

// OriginType says where an idea came from.
type OriginType string

const (
	OriginTikTok  OriginType = "tiktok"
	OriginYouTube OriginType = "youtube"
	OriginArticle OriginType = "article"
	OriginLecture OriginType = "lecture"
	OriginOther   OriginType = "other"
)

// TrustLevel is a reviewer's standing.
type TrustLevel string

const (
	TrustContributor TrustLevel = "contributor"
	TrustReviewer    TrustLevel = "reviewer"
	TrustEditor      TrustLevel = "editor"
)

// ArtifactMetadata carries optional descriptive fields for an artifact.
type ArtifactMetadata struct {
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	Transcript    string `json:"transcript,omitempty"`
	ExtractedText string `json:"extractedText,omitempty"`
	Duration      int    `json:"duration,omitempty"`
	PageCount     int    `json:"pageCount,omitempty"`
}

// Artifact is one piece of evidence.
type Artifact struct {
	Type      ArtifactType      `json:"type" validate:"required,oneof=url video image pdf screenshot"`
	URL       string            `json:"url" validate:"required"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Metadata  *ArtifactMetadata `json:"metadata,omitempty"`
}

// Origin records the provenance of a node.
type Origin struct {
	Type        OriginType `json:"type" validate:"omitempty,oneof=tiktok youtube article lecture other"`
	Description string     `json:"description"`
}

// ReviewMetadata holds reviewer and trust annotations.
type ReviewMetadata struct {
	ReviewerID     string     `json:"reviewerId,omitempty"`
	ReviewerHandle string     `json:"reviewerHandle,omitempty"`
	TrustLevel     TrustLevel `json:"trustLevel,omitempty"`
	ReviewDate     string     `json:"reviewDate,omitempty"`
	ReviewComment  string     `json:"reviewComment,omitempty"`
	NextReviewDate string     `json:"nextReviewDate,omitempty"`
}

// SystemContext explains a node's semantic role.
type SystemContext struct {
	Layer        string `json:"layer"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

// RawSystemContext is attached to nodes created through the terminal form.
var RawSystemContext = SystemContext{
	Layer:        "raw",
	Description:  "A foundational thought unit in the Field system",
	Instructions: "This is a raw node that can be expanded, linked, and refined over time",
}

// Node is an atomic knowledge unit.
type Node struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title" validate:"required,max=280"`
	Thought              string          `json:"thought" validate:"max=1000"`
	Origin               Origin          `json:"origin"`
	Artifacts            []Artifact      `json:"artifacts" validate:"dive"`
	Author               string          `json:"author" validate:"required"`
	Tags                 []string        `json:"tags"`
	SuggestedConnections []string        `json:"suggestedConnections"`
	Connections          []string        `json:"connections"`
	Status               NodeStatus      `json:"status" validate:"omitempty,oneof=draft grounded reviewed canonical needs_revision"`
	ReviewMetadata       *ReviewMetadata `json:"reviewMetadata,omitempty"`
	SystemContext        SystemContext   `json:"systemContext"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	LastTended           time.Time       `json:"lastTended"`
	ConnectionCount      int             `json:"connectionCount"`
}

// ApplyGrounding enforces the evidence rule: a node with no artifacts cannot
// be grounded. An unset status is derived from the artifact count.
func (n *Node) ApplyGrounding() {
	switch {
	case len(n.Artifacts) == 0 && n.Status == StatusGrounded:
		n.Status = StatusDraft
	case len(n.Artifacts) > 0 && n.Status == "":
		n.Status = StatusGrounded
	case n.Status == "":
		n.Status = StatusDraft
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (n Node) Clone() Node {
	out := n
	if n.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(n.Artifacts))
		for i, a := range n.Artifacts {
			if a.Metadata != nil {
				md := *a.Metadata
				a.Metadata = &md
			}
			out.Artifacts[i] = a
		}
	}
	out.Tags = cloneStrings(n.Tags)
	out.SuggestedConnections = cloneStrings(n.SuggestedConnections)
	out.Connections = cloneStrings(n.Connections)
	if n.ReviewMetadata != nil {
		rm := *n.ReviewMetadata
		out.ReviewMetadata = &rm
	}
	return out
}

// Normalize fills nil slices so JSON output is stable.
func (n *Node) Normalize() {
	if n.Artifacts == nil {
		n.Artifacts = []Artifact{}
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.SuggestedConnections == nil {
		n.SuggestedConnections = []string{}
	}
	if n.Connections == nil {
		n.Connections = []string{}
	}
}

// HasConnection reports whether id is in the node's confirmed connections.
func (n Node) HasConnection(id string) bool {
	for _, c := range n.Connections {
		if c == id {
			return true
		}
	}
	return false
}

// Matches reports whether the lowercase term occurs in any searchable field.
func (n Node) Matches(term string) bool {
	term = strings.ToLower(term)
	if containsFold(n.Title, term) || containsFold(n.Thought, term) ||
		containsFold(n.Author, term) || containsFold(n.Origin.Description, term) {
		return true
	}
	for _, t := range n.Tags {
		if containsFold(t, term) {
			return true
		}
	}
	for _, a := range n.Artifacts {
		if a.Metadata == nil {
			continue
		}
		if containsFold(a.Metadata.Title, term) || containsFold(a.Metadata.Author, term) ||
			containsFold(a.Metadata.ExtractedText, term) {
			return true
		}
	}
	return false
}

// NodePatch is a partial update. Nil fields are left untouched.
type NodePatch struct {
	Title                *string         `json:"title,omitempty"`
	Thought              *string         `json:"thought,omitempty"`
	Origin               *Origin         `json:"origin,omitempty"`
	Artifacts            *[]Artifact     `json:"artifacts,omitempty"`
	Tags                 *[]string       `json:"tags,omitempty"`
	SuggestedConnections *[]string       `json:"suggestedConnections,omitempty"`
	Status               *NodeStatus     `json:"status,omitempty"`
	ReviewMetadata       *ReviewMetadata `json:"reviewMetadata,omitempty"`
	Tended               bool            `json:"tended,omitempty"`
}

// Apply merges the patch into n.
func (p NodePatch) Apply(n *Node) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Thought != nil {
		n.Thought = *p.Thought
	}
	if p.Origin != nil {
		n.Origin = *p.Origin
	}
	if p.Artifacts != nil {
		n.Artifacts = append([]Artifact(nil), (*p.Artifacts)...)
	}
	if p.Tags != nil {
		n.Tags = cloneStrings(*p.Tags)
	}
	if p.SuggestedConnections != nil {
		n.SuggestedConnections = cloneStrings(*p.SuggestedConnections)
	}
	if p.Status != nil {
		n.Status = *p.Status
	}
	if p.ReviewMetadata != nil {
		rm := *p.ReviewMetadata
		n.ReviewMetadata = &rm
	}
}

// RelationshipType qualifies a connection between two nodes.
type RelationshipType string

const (
	RelExpands    RelationshipType = "expands"
	RelSupports   RelationshipType = "supports"
	RelRevises    RelationshipType = "revises"
	RelSituates   RelationshipType = "situates"
	RelVerifies   RelationshipType = "verifies"
	RelChallenges RelationshipType = "challenges"
)

// RelationshipTypes lists the accepted relationship kinds.
var RelationshipTypes = []RelationshipType{RelExpands, RelSupports, RelRevises, RelSituates, RelVerifies, RelChallenges}

// IsValid reports whether r is a known relationship.
func (r RelationshipType) IsValid() bool {
	for _, v := range RelationshipTypes {
		if v == r {
			return true
		}
	}
	return false
}

// Connection links two nodes.
type Connection struct {
	SourceID     string           `json:"sourceId" validate:"required"`
	TargetID     string           `json:"targetId" validate:"required,nefield=SourceID"`
	Relationship RelationshipType `json:"relationship" validate:"omitempty,oneof=expands supports revises situates verifies challenges"`
	CreatedBy    string           `json:"createdBy,omitempty"`
}

// NodeCounter is the per-type ID counter.
type NodeCounter struct {
	Type         NodeType `json:"type"`
	CurrentCount int      `json:"current_count"`
}

// Activity is an entry in the activity log.
type Activity struct {
	ID     string    `json:"id"`
	Action string    `json:"action"`
	NodeID string    `json:"node_id"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"created_at"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}
