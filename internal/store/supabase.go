package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/fieldnodes/field-nodes/internal/models"
)

const (
	tableNodes       = "nodes"
	tableFields      = "fields"
	tableUsers       = "users"
	tableConnections = "node_connections"
	tableActivity    = "activity_log"

	rpcNextNodeID     = "get_next_node_id"
	rpcResyncCounters = "resync_node_counters"
)

// RestClient is the subset of the PostgREST API the Supabase backend needs.
// Both *supabase.Client and *postgrest.Client satisfy it.
type RestClient interface {
	From(table string) *postgrest.QueryBuilder
	Rpc(name, count string, body interface{}) string
}

// SupabaseStore persists nodes in a hosted Postgres through PostgREST.
// ID sequences are owned by the server-side get_next_node_id function.
type SupabaseStore struct {
	client RestClient
	logger *slog.Logger
	now    func() time.Time
}

// NewSupabaseStore wraps client. The client is not closed by Close.
func NewSupabaseStore(client RestClient, logger *slog.Logger) *SupabaseStore {
	return &SupabaseStore{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var nodeTypeNames = map[models.NodeType]string{
	models.NodeTypeRaw:        "raw",
	models.NodeTypeContext:    "context",
	models.NodeTypeSupport:    "support",
	models.NodeTypeReflection: "reflection",
	models.NodeTypeSystem:     "system",
}

// nodeMetadata holds the node attributes without a dedicated column.
type nodeMetadata struct {
	Origin               models.Origin          `json:"origin"`
	Tags                 []string               `json:"tags"`
	SuggestedConnections []string               `json:"suggestedConnections"`
	Connections          []string               `json:"connections"`
	ReviewMetadata       *models.ReviewMetadata `json:"reviewMetadata,omitempty"`
	SystemContext        models.SystemContext   `json:"systemContext"`
	LastTended           time.Time              `json:"lastTended"`
	ConnectionCount      int                    `json:"connectionCount"`
}

type nodeRow struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Status      models.NodeStatus `json:"status"`
	AuthorID    string            `json:"author_id"`
	Statement   string            `json:"statement"`
	Description string            `json:"description"`
	Sources     []models.Artifact `json:"sources"`
	Metadata    nodeMetadata      `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toRow(n models.Node) nodeRow {
	n.Normalize()
	typ, _ := ParseNodeType(n.ID)
	return nodeRow{
		ID:          n.ID,
		Type:        nodeTypeNames[typ],
		Status:      n.Status,
		AuthorID:    n.Author,
		Statement:   n.Title,
		Description: n.Thought,
		Sources:     n.Artifacts,
		Metadata: nodeMetadata{
			Origin:               n.Origin,
			Tags:                 n.Tags,
			SuggestedConnections: n.SuggestedConnections,
			Connections:          n.Connections,
			ReviewMetadata:       n.ReviewMetadata,
			SystemContext:        n.SystemContext,
			LastTended:           n.LastTended,
			ConnectionCount:      n.ConnectionCount,
		},
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (r nodeRow) node() models.Node {
	n := models.Node{
		ID:                   r.ID,
		Title:                r.Statement,
		Thought:              r.Description,
		Origin:               r.Metadata.Origin,
		Artifacts:            r.Sources,
		Author:               r.AuthorID,
		Tags:                 r.Metadata.Tags,
		SuggestedConnections: r.Metadata.SuggestedConnections,
		Connections:          r.Metadata.Connections,
		Status:               r.Status,
		ReviewMetadata:       r.Metadata.ReviewMetadata,
		SystemContext:        r.Metadata.SystemContext,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		LastTended:           r.Metadata.LastTended,
		ConnectionCount:      r.Metadata.ConnectionCount,
	}
	n.Normalize()
	return n
}

type fieldRow struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	NodeCount   int      `json:"node_count"`
	Tags        []string `json:"tags"`
	Color       string   `json:"color"`
	IsPublic    bool     `json:"is_public"`
}

func (r fieldRow) field() models.Field {
	return models.Field{ID: r.Slug, Name: r.Name, Description: r.Description, NodeCount: r.NodeCount, Tags: r.Tags, Color: r.Color}
}

type connectionRow struct {
	FromNodeID       string                  `json:"from_node_id"`
	ToNodeID         string                  `json:"to_node_id"`
	RelationshipType models.RelationshipType `json:"relationship_type"`
	CreatedBy        string                  `json:"created_by,omitempty"`
}

type activityRow struct {
	Action string `json:"action"`
	NodeID string `json:"node_id"`
	UserID string `json:"user_id,omitempty"`
}

// rpc calls a Postgres function and returns its raw JSON result, which is
// empty for void functions. PostgREST reports function errors as an object
// carrying code and message.
func (s *SupabaseStore) rpc(ctx context.Context, name string, body any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(s.client.Rpc(name, "", body))
	var apiErr postgrest.ExecuteError
	if strings.HasPrefix(raw, "{") && json.Unmarshal([]byte(raw), &apiErr) == nil && apiErr.Message != "" {
		return nil, storageErr("rpc "+name, fmt.Errorf("(%s) %s", apiErr.Code, apiErr.Message))
	}
	return json.RawMessage(raw), nil
}

// parseSequence accepts the function result as a number or a numeric string.
func parseSequence(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unexpected sequence %s", raw)
	}
	return strconv.Atoi(s)
}

func (s *SupabaseStore) selectNodes(ctx context.Context, filter func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) ([]models.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := s.client.From(tableNodes).Select("*", "", false)
	if filter != nil {
		q = filter(q)
	}
	var rows []nodeRow
	if _, err := q.Order("created_at", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows); err != nil {
		return nil, storageErr("select nodes", err)
	}
	out := make([]models.Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.node())
	}
	return out, nil
}

// CreateNode takes the next sequence from the server and inserts the row.
func (s *SupabaseStore) CreateNode(ctx context.Context, n models.Node, typ models.NodeType) (models.Node, error) {
	if !typ.IsValid() {
		return models.Node{}, fmt.Errorf("create node: %w type %q", models.ErrInvalid, typ)
	}
	if err := models.Validate(n); err != nil {
		return models.Node{}, fmt.Errorf("create node: %w", err)
	}
	raw, err := s.rpc(ctx, rpcNextNodeID, map[string]string{"node_prefix": string(typ)})
	if err != nil {
		return models.Node{}, err
	}
	seq, err := parseSequence(raw)
	if err != nil {
		return models.Node{}, storageErr("rpc "+rpcNextNodeID, err)
	}

	now := s.now()
	n = n.Clone()
	n.ID = FormatNodeID(typ, seq)
	n.CreatedAt, n.UpdatedAt, n.LastTended = now, now, now
	n.ConnectionCount = len(n.Connections)
	n.ApplyGrounding()
	n.Normalize()

	var rows []nodeRow
	if _, err := s.client.From(tableNodes).Insert(toRow(n), false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return models.Node{}, storageErr("insert node", err)
	}
	if len(rows) > 0 {
		n = rows[0].node()
	}

	// The activity feed is best effort; the node is already stored.
	act := activityRow{Action: "offered", NodeID: n.ID, UserID: n.Author}
	if _, _, err := s.client.From(tableActivity).Insert(act, false, "", "minimal", "").Execute(); err != nil {
		s.logger.Warn("store: activity log failed", "id", n.ID, "error", err)
	}
	s.logger.Debug("store: node created", "id", n.ID, "status", n.Status)
	return n, nil
}

// SaveNode upserts n on its ID.
func (s *SupabaseStore) SaveNode(ctx context.Context, n models.Node) error {
	if _, ok := ParseNodeType(n.ID); !ok {
		return fmt.Errorf("save node: %w id %q", models.ErrInvalid, n.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n = n.Clone()
	n.UpdatedAt = s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.UpdatedAt
	}
	n.ApplyGrounding()
	if _, _, err := s.client.From(tableNodes).Upsert(toRow(n), "id", "minimal", "").Execute(); err != nil {
		return storageErr("upsert node", err)
	}
	return nil
}

// GetNode fetches one node by ID.
func (s *SupabaseStore) GetNode(ctx context.Context, id string) (models.Node, error) {
	nodes, err := s.selectNodes(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder { return q.Eq("id", id) })
	if err != nil {
		return models.Node{}, err
	}
	if len(nodes) == 0 {
		return models.Node{}, notFound("node", id)
	}
	return nodes[0], nil
}

// ListNodes returns all nodes oldest first.
func (s *SupabaseStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	return s.selectNodes(ctx, nil)
}

// ListByField applies the same tag and origin matching as the local store.
func (s *SupabaseStore) ListByField(ctx context.Context, fieldID string) ([]models.Node, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, inField(fieldID)), nil
}

func (s *SupabaseStore) ListByStatus(ctx context.Context, status models.NodeStatus) ([]models.Node, error) {
	return s.selectNodes(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder { return q.Eq("status", string(status)) })
}

func (s *SupabaseStore) ListByAuthor(ctx context.Context, author string) ([]models.Node, error) {
	return s.selectNodes(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder { return q.Eq("author_id", author) })
}

// Search fetches every node and matches client side, since tags, origin and
// artifact metadata live in JSON columns that ilike cannot reach.
func (s *SupabaseStore) Search(ctx context.Context, query string) ([]models.Node, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, matchesQuery(query)), nil
}

// SearchAdvanced pushes status and author down to the server and applies the
// remaining filters locally.
func (s *SupabaseStore) SearchAdvanced(ctx context.Context, opts models.SearchOptions) ([]models.Node, error) {
	if err := models.Validate(opts); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	nodes, err := s.selectNodes(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		if opts.Status != "" {
			q = q.Eq("status", string(opts.Status))
		}
		if opts.Author != "" {
			q = q.Eq("author_id", opts.Author)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return advancedSearch(nodes, opts), nil
}

func (s *SupabaseStore) updateRow(n models.Node) (models.Node, error) {
	var rows []nodeRow
	if _, err := s.client.From(tableNodes).Update(toRow(n), "representation", "").Eq("id", n.ID).ExecuteTo(&rows); err != nil {
		return models.Node{}, storageErr("update node", err)
	}
	if len(rows) == 0 {
		return models.Node{}, notFound("node", n.ID)
	}
	return rows[0].node(), nil
}

// UpdateNode reads, patches and writes back the node.
func (s *SupabaseStore) UpdateNode(ctx context.Context, id string, patch models.NodePatch) (models.Node, error) {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return models.Node{}, err
	}
	patch.Apply(&n)
	if err := models.Validate(n); err != nil {
		return models.Node{}, fmt.Errorf("update node: %w", err)
	}
	n.UpdatedAt = s.now()
	if patch.Tended {
		n.LastTended = n.UpdatedAt
	}
	n.ApplyGrounding()
	return s.updateRow(n)
}

// DeleteNode removes the row, its connection rows and back-references.
func (s *SupabaseStore) DeleteNode(ctx context.Context, id string) error {
	n, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}
	var rows []nodeRow
	if _, err := s.client.From(tableNodes).Delete("representation", "").Eq("id", id).ExecuteTo(&rows); err != nil {
		return storageErr("delete node", err)
	}
	if len(rows) == 0 {
		return notFound("node", id)
	}
	filter := fmt.Sprintf("from_node_id.eq.%s,to_node_id.eq.%s", id, id)
	if _, _, err := s.client.From(tableConnections).Delete("minimal", "").Or(filter, "").Execute(); err != nil {
		return storageErr("delete connections", err)
	}
	for _, other := range n.Connections {
		peer, err := s.GetNode(ctx, other)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		peer.Connections = removeID(peer.Connections, id)
		peer.ConnectionCount = len(peer.Connections)
		peer.UpdatedAt = s.now()
		if _, err := s.updateRow(peer); err != nil {
			return err
		}
	}
	return nil
}

// Connect inserts the connection row and updates both node rows.
func (s *SupabaseStore) Connect(ctx context.Context, conn models.Connection) error {
	if err := models.Validate(conn); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	src, err := s.GetNode(ctx, conn.SourceID)
	if err != nil {
		return err
	}
	dst, err := s.GetNode(ctx, conn.TargetID)
	if err != nil {
		return err
	}
	row := connectionRow{FromNodeID: conn.SourceID, ToNodeID: conn.TargetID, RelationshipType: conn.Relationship, CreatedBy: conn.CreatedBy}
	if _, _, err := s.client.From(tableConnections).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return storageErr("insert connection", err)
	}
	now := s.now()
	for _, pair := range [][2]*models.Node{{&src, &dst}, {&dst, &src}} {
		n, peer := pair[0], pair[1]
		n.Connections = addUnique(n.Connections, peer.ID)
		n.SuggestedConnections = removeID(n.SuggestedConnections, peer.ID)
		n.ConnectionCount = len(n.Connections)
		n.UpdatedAt = now
		if _, err := s.updateRow(*n); err != nil {
			return err
		}
	}
	return nil
}

// ListFields returns public fields, or the defaults when the table is empty.
func (s *SupabaseStore) ListFields(ctx context.Context) ([]models.Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []fieldRow
	if _, err := s.client.From(tableFields).Select("*", "", false).Eq("is_public", "true").ExecuteTo(&rows); err != nil {
		return nil, storageErr("select fields", err)
	}
	if len(rows) == 0 {
		return models.DefaultFields(), nil
	}
	out := make([]models.Field, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.field())
	}
	return out, nil
}

func (s *SupabaseStore) GetField(ctx context.Context, id string) (models.Field, error) {
	fields, err := s.ListFields(ctx)
	if err != nil {
		return models.Field{}, err
	}
	for _, f := range fields {
		if f.ID == id {
			return f, nil
		}
	}
	return models.Field{}, notFound("field", id)
}

// SaveField upserts on the slug.
func (s *SupabaseStore) SaveField(ctx context.Context, f models.Field) error {
	if err := models.Validate(f); err != nil {
		return fmt.Errorf("save field: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	row := fieldRow{Slug: f.ID, Name: f.Name, Description: f.Description, NodeCount: f.NodeCount, Tags: f.Tags, Color: f.Color, IsPublic: true}
	if _, _, err := s.client.From(tableFields).Upsert(row, "slug", "minimal", "").Execute(); err != nil {
		return storageErr("upsert field", err)
	}
	return nil
}

// SaveUser upserts the profile row. Password hashes stay with the auth
// service and are never written to the users table.
func (s *SupabaseStore) SaveUser(ctx context.Context, u models.User) error {
	if err := models.Validate(u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.PasswordHash = ""
	if _, _, err := s.client.From(tableUsers).Upsert(u, "id", "minimal", "").Execute(); err != nil {
		return storageErr("upsert user", err)
	}
	return nil
}

// GetUser looks up a profile by username, case-insensitively.
func (s *SupabaseStore) GetUser(ctx context.Context, username string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	var rows []models.User
	if _, err := s.client.From(tableUsers).Select("*", "", false).Ilike("username", username).ExecuteTo(&rows); err != nil {
		return models.User{}, storageErr("select users", err)
	}
	for _, u := range rows {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, notFound("user", username)
}

// NextNodeID previews from the IDs present; the server sequence is only
// advanced by CreateNode.
func (s *SupabaseStore) NextNodeID(ctx context.Context, typ models.NodeType) (string, error) {
	counters, err := s.Counters(ctx)
	if err != nil {
		return "", err
	}
	return FormatNodeID(typ, counterFor(counters, typ)+1), nil
}

// Counters derives the per-type counters from the stored IDs.
func (s *SupabaseStore) Counters(ctx context.Context) ([]models.NodeCounter, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return nil, err
	}
	return recomputeCounters(nodes), nil
}

// ResyncCounters hands the recomputed counters to the server sequence.
func (s *SupabaseStore) ResyncCounters(ctx context.Context) error {
	counters, err := s.Counters(ctx)
	if err != nil {
		return err
	}
	_, err = s.rpc(ctx, rpcResyncCounters, map[string]any{"counters": counters})
	return err
}

func (s *SupabaseStore) countUsers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, count, err := s.client.From(tableUsers).Select("id", "exact", true).Execute()
	if err != nil {
		return 0, storageErr("count users", err)
	}
	return int(count), nil
}

func (s *SupabaseStore) Stats(ctx context.Context) (models.Stats, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return models.Stats{}, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	users, err := s.countUsers(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	return computeStats(nodes, len(fields), users), nil
}

func (s *SupabaseStore) StatsByType(ctx context.Context) ([]models.TypeStats, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return nil, err
	}
	return computeTypeStats(nodes), nil
}

// Export reads every table into a snapshot.
func (s *SupabaseStore) Export(ctx context.Context) (models.Snapshot, error) {
	nodes, err := s.selectNodes(ctx, nil)
	if err != nil {
		return models.Snapshot{}, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	var users []models.User
	if _, err := s.client.From(tableUsers).Select("*", "", false).ExecuteTo(&users); err != nil {
		return models.Snapshot{}, storageErr("select users", err)
	}
	return models.Snapshot{
		Nodes:      nodes,
		Fields:     fields,
		Users:      users,
		Counters:   recomputeCounters(nodes),
		ExportedAt: s.now().Format(time.RFC3339),
	}, nil
}

// Import upserts every record of snap and resyncs the server sequence.
func (s *SupabaseStore) Import(ctx context.Context, snap models.Snapshot) error {
	rows := make([]nodeRow, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if _, ok := ParseNodeType(n.ID); !ok {
			return fmt.Errorf("import: %w node id %q", models.ErrInvalid, n.ID)
		}
		n.ApplyGrounding()
		rows = append(rows, toRow(n))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) > 0 {
		if _, _, err := s.client.From(tableNodes).Upsert(rows, "id", "minimal", "").Execute(); err != nil {
			return storageErr("import nodes", err)
		}
	}
	for _, f := range snap.Fields {
		if err := s.SaveField(ctx, f); err != nil {
			return err
		}
	}
	for _, u := range snap.Users {
		if err := s.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return s.ResyncCounters(ctx)
}

// ClearAll deletes every row this backend owns. PostgREST refuses unfiltered
// deletes, hence the always-true filters.
func (s *SupabaseStore) ClearAll(ctx context.Context) error {
	deletes := []struct{ table, column string }{
		{tableConnections, "from_node_id"},
		{tableActivity, "node_id"},
		{tableNodes, "id"},
		{tableFields, "slug"},
		{tableUsers, "id"},
	}
	for _, d := range deletes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, _, err := s.client.From(d.table).Delete("minimal", "").Not(d.column, "is", "null").Execute(); err != nil {
			return storageErr("clear "+d.table, err)
		}
	}
	s.logger.Info("store: remote tables cleared")
	return nil
}

// Close is a no-op; the HTTP client holds no resources.
func (s *SupabaseStore) Close() error { return nil }

var (
	_ NodeStore = (*LocalStore)(nil)
	_ NodeStore = (*SupabaseStore)(nil)
)
