package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fieldnodes/field-nodes/internal/kv"
	"github.com/fieldnodes/field-nodes/internal/models"
)

// LocalStore keeps nodes, fields, users and counters as JSON arrays under
// fixed keys of a kv.Store. All read-modify-write cycles hold mu, so IDs are
// unique within the process.
type LocalStore struct {
	kv     kv.Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewLocalStore creates a store over the given key-value backend.
func NewLocalStore(backend kv.Store, logger *slog.Logger) *LocalStore {
	return &LocalStore{
		kv:     backend,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// readList decodes the JSON array under key. A missing key yields ok=false.
func readList[T any](ctx context.Context, s kv.Store, key string) (items []T, ok bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("read "+key, err)
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false, storageErr("decode "+key, err)
	}
	return items, true, nil
}

func writeList[T any](ctx context.Context, s kv.Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return storageErr("encode "+key, err)
	}
	if err := s.Set(ctx, key, string(raw)); err != nil {
		return storageErr("write "+key, err)
	}
	return nil
}

func (s *LocalStore) nodes(ctx context.Context) ([]models.Node, error) {
	nodes, _, err := readList[models.Node](ctx, s.kv, kv.KeyNodes)
	return nodes, err
}

func (s *LocalStore) counters(ctx context.Context) ([]models.NodeCounter, error) {
	counters, _, err := readList[models.NodeCounter](ctx, s.kv, kv.KeyNodeCounters)
	return counters, err
}

// CreateNode assigns the next ID of typ and persists the node. The counter is
// written only after the node write succeeds; if the counter write fails the
// node list is restored, so a failed create leaves nothing behind.
func (s *LocalStore) CreateNode(ctx context.Context, n models.Node, typ models.NodeType) (models.Node, error) {
	if !typ.IsValid() {
		return models.Node{}, fmt.Errorf("create node: %w type %q", models.ErrInvalid, typ)
	}
	if err := models.Validate(n); err != nil {
		return models.Node{}, fmt.Errorf("create node: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, hadNodes, err := readList[models.Node](ctx, s.kv, kv.KeyNodes)
	if err != nil {
		return models.Node{}, err
	}
	counters, err := s.counters(ctx)
	if err != nil {
		return models.Node{}, err
	}

	next := counterFor(counters, typ) + 1
	for nodeIndex(nodes, FormatNodeID(typ, next)) >= 0 {
		next++
	}

	now := s.now()
	n = n.Clone()
	n.ID = FormatNodeID(typ, next)
	n.CreatedAt, n.UpdatedAt, n.LastTended = now, now, now
	n.ConnectionCount = len(n.Connections)
	n.ApplyGrounding()
	n.Normalize()

	if err := writeList(ctx, s.kv, kv.KeyNodes, append(nodes, n)); err != nil {
		return models.Node{}, err
	}
	if err := writeList(ctx, s.kv, kv.KeyNodeCounters, setCounter(counters, typ, next)); err != nil {
		if rbErr := s.restoreNodes(ctx, nodes, hadNodes); rbErr != nil {
			s.logger.Error("store: node rollback failed", "id", n.ID, "error", rbErr)
		}
		return models.Node{}, err
	}
	s.logger.Debug("store: node created", "id", n.ID, "status", n.Status)
	return n.Clone(), nil
}

// restoreNodes puts back the node list as it was before a failed create.
func (s *LocalStore) restoreNodes(ctx context.Context, nodes []models.Node, existed bool) error {
	if !existed {
		if err := s.kv.Delete(ctx, kv.KeyNodes); err != nil {
			return storageErr("delete "+kv.KeyNodes, err)
		}
		return nil
	}
	return writeList(ctx, s.kv, kv.KeyNodes, nodes)
}

// SaveNode inserts or replaces n by ID.
func (s *LocalStore) SaveNode(ctx context.Context, n models.Node) error {
	if _, ok := ParseNodeType(n.ID); !ok {
		return fmt.Errorf("save node: %w id %q", models.ErrInvalid, n.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.nodes(ctx)
	if err != nil {
		return err
	}
	n = n.Clone()
	n.UpdatedAt = s.now()
	n.ApplyGrounding()
	n.Normalize()
	if i := nodeIndex(nodes, n.ID); i >= 0 {
		nodes[i] = n
	} else {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = n.UpdatedAt
		}
		nodes = append(nodes, n)
	}
	return writeList(ctx, s.kv, kv.KeyNodes, nodes)
}

func nodeIndex(nodes []models.Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// GetNode returns the node with id.
func (s *LocalStore) GetNode(ctx context.Context, id string) (models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return models.Node{}, err
	}
	if i := nodeIndex(nodes, id); i >= 0 {
		return nodes[i].Clone(), nil
	}
	return models.Node{}, notFound("node", id)
}

// ListNodes returns all nodes in insertion order.
func (s *LocalStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, func(models.Node) bool { return true }), nil
}

// ListByField matches the field id against tags and origin description.
func (s *LocalStore) ListByField(ctx context.Context, fieldID string) ([]models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, inField(fieldID)), nil
}

// ListByStatus returns nodes in the given status.
func (s *LocalStore) ListByStatus(ctx context.Context, status models.NodeStatus) ([]models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, func(n models.Node) bool { return n.Status == status }), nil
}

// ListByAuthor returns nodes written by author (exact match).
func (s *LocalStore) ListByAuthor(ctx context.Context, author string) ([]models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, func(n models.Node) bool { return n.Author == author }), nil
}

// Search returns nodes containing query in any searchable field.
func (s *LocalStore) Search(ctx context.Context, query string) ([]models.Node, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return filterNodes(nodes, matchesQuery(query)), nil
}

// SearchAdvanced composes filters and sorts.
func (s *LocalStore) SearchAdvanced(ctx context.Context, opts models.SearchOptions) ([]models.Node, error) {
	if err := models.Validate(opts); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return advancedSearch(nodes, opts), nil
}

// UpdateNode merges patch into the stored node.
func (s *LocalStore) UpdateNode(ctx context.Context, id string, patch models.NodePatch) (models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.nodes(ctx)
	if err != nil {
		return models.Node{}, err
	}
	i := nodeIndex(nodes, id)
	if i < 0 {
		return models.Node{}, notFound("node", id)
	}
	n := nodes[i].Clone()
	patch.Apply(&n)
	if err := models.Validate(n); err != nil {
		return models.Node{}, fmt.Errorf("update node: %w", err)
	}
	n.UpdatedAt = s.now()
	if patch.Tended {
		n.LastTended = n.UpdatedAt
	}
	n.ApplyGrounding()
	nodes[i] = n
	if err := writeList(ctx, s.kv, kv.KeyNodes, nodes); err != nil {
		return models.Node{}, err
	}
	return n.Clone(), nil
}

// DeleteNode removes id and strips it from every other node's connections.
func (s *LocalStore) DeleteNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.nodes(ctx)
	if err != nil {
		return err
	}
	i := nodeIndex(nodes, id)
	if i < 0 {
		return notFound("node", id)
	}
	nodes = append(nodes[:i], nodes[i+1:]...)
	for j := range nodes {
		if nodes[j].HasConnection(id) {
			nodes[j].Connections = removeID(nodes[j].Connections, id)
			nodes[j].ConnectionCount = len(nodes[j].Connections)
		}
	}
	return writeList(ctx, s.kv, kv.KeyNodes, nodes)
}

// Connect links source and target on both sides in a single write.
func (s *LocalStore) Connect(ctx context.Context, conn models.Connection) error {
	if err := models.Validate(conn); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.nodes(ctx)
	if err != nil {
		return err
	}
	a, b := nodeIndex(nodes, conn.SourceID), nodeIndex(nodes, conn.TargetID)
	if a < 0 {
		return notFound("node", conn.SourceID)
	}
	if b < 0 {
		return notFound("node", conn.TargetID)
	}
	now := s.now()
	for _, pair := range [][2]int{{a, b}, {b, a}} {
		n := &nodes[pair[0]]
		n.Connections = addUnique(n.Connections, nodes[pair[1]].ID)
		n.SuggestedConnections = removeID(n.SuggestedConnections, nodes[pair[1]].ID)
		n.ConnectionCount = len(n.Connections)
		n.UpdatedAt = now
	}
	return writeList(ctx, s.kv, kv.KeyNodes, nodes)
}

// ListFields returns stored fields, or the defaults when none were saved.
func (s *LocalStore) ListFields(ctx context.Context) ([]models.Field, error) {
	fields, ok, err := readList[models.Field](ctx, s.kv, kv.KeyFields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return models.DefaultFields(), nil
	}
	return fields, nil
}

// GetField returns the field with id.
func (s *LocalStore) GetField(ctx context.Context, id string) (models.Field, error) {
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

// SaveField inserts or replaces f by ID.
func (s *LocalStore) SaveField(ctx context.Context, f models.Field) error {
	if err := models.Validate(f); err != nil {
		return fmt.Errorf("save field: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := s.ListFields(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range fields {
		if fields[i].ID == f.ID {
			fields[i] = f
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, f)
	}
	return writeList(ctx, s.kv, kv.KeyFields, fields)
}

// SaveUser inserts or replaces u, matched by username.
func (s *LocalStore) SaveUser(ctx context.Context, u models.User) error {
	if err := models.Validate(u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, _, err := readList[models.User](ctx, s.kv, kv.KeyUsers)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	replaced := false
	for i := range users {
		if strings.EqualFold(users[i].Username, u.Username) {
			users[i] = u
			replaced = true
		}
	}
	if !replaced {
		users = append(users, u)
	}
	return writeList(ctx, s.kv, kv.KeyUsers, users)
}

// GetUser looks a user up by username, case-insensitively.
func (s *LocalStore) GetUser(ctx context.Context, username string) (models.User, error) {
	users, _, err := readList[models.User](ctx, s.kv, kv.KeyUsers)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, notFound("user", username)
}

// NextNodeID previews the ID CreateNode would assign.
func (s *LocalStore) NextNodeID(ctx context.Context, typ models.NodeType) (string, error) {
	counters, err := s.counters(ctx)
	if err != nil {
		return "", err
	}
	return FormatNodeID(typ, counterFor(counters, typ)+1), nil
}

// Counters returns the persisted counters.
func (s *LocalStore) Counters(ctx context.Context) ([]models.NodeCounter, error) {
	return s.counters(ctx)
}

// ResyncCounters rebuilds counters from the nodes present.
func (s *LocalStore) ResyncCounters(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.nodes(ctx)
	if err != nil {
		return err
	}
	return writeList(ctx, s.kv, kv.KeyNodeCounters, recomputeCounters(nodes))
}

// Stats summarizes nodes, fields and users.
func (s *LocalStore) Stats(ctx context.Context) (models.Stats, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	users, _, err := readList[models.User](ctx, s.kv, kv.KeyUsers)
	if err != nil {
		return models.Stats{}, err
	}
	return computeStats(nodes, len(fields), len(users)), nil
}

// StatsByType counts nodes per type.
func (s *LocalStore) StatsByType(ctx context.Context) ([]models.TypeStats, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return nil, err
	}
	return computeTypeStats(nodes), nil
}

// Export returns everything in the store.
func (s *LocalStore) Export(ctx context.Context) (models.Snapshot, error) {
	nodes, err := s.nodes(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	users, _, err := readList[models.User](ctx, s.kv, kv.KeyUsers)
	if err != nil {
		return models.Snapshot{}, err
	}
	counters, err := s.counters(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		Nodes:      nodes,
		Fields:     fields,
		Users:      users,
		Counters:   counters,
		ExportedAt: s.now().Format(time.RFC3339),
	}, nil
}

// Import replaces each collection present in snap. Counters are recomputed
// when the snapshot carries nodes but no counters.
func (s *LocalStore) Import(ctx context.Context, snap models.Snapshot) error {
	for i := range snap.Nodes {
		if _, ok := ParseNodeType(snap.Nodes[i].ID); !ok {
			return fmt.Errorf("import: %w node id %q", models.ErrInvalid, snap.Nodes[i].ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Nodes != nil {
		if err := writeList(ctx, s.kv, kv.KeyNodes, snap.Nodes); err != nil {
			return err
		}
		if snap.Counters == nil {
			snap.Counters = recomputeCounters(snap.Nodes)
		}
	}
	if snap.Fields != nil {
		if err := writeList(ctx, s.kv, kv.KeyFields, snap.Fields); err != nil {
			return err
		}
	}
	if snap.Users != nil {
		if err := writeList(ctx, s.kv, kv.KeyUsers, snap.Users); err != nil {
			return err
		}
	}
	if snap.Counters != nil {
		if err := writeList(ctx, s.kv, kv.KeyNodeCounters, snap.Counters); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll deletes every store key. UI flags are left alone.
func (s *LocalStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{kv.KeyNodes, kv.KeyFields, kv.KeyUsers, kv.KeyNodeCounters} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return storageErr("delete "+key, err)
		}
	}
	return nil
}

// Close closes the underlying key-value store.
func (s *LocalStore) Close() error {
	return s.kv.Close()
}
