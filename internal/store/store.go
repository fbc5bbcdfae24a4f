package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldnodes/field-nodes/internal/models"
)

// ErrNotFound is returned when the requested node, field or user does not exist.
var ErrNotFound = errors.New("not found")

// StorageError wraps a persistence failure (serialization, disk, network).
// It is never used for a missing record.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NodeStore is the persistence contract shared by the local and Supabase backends.
type NodeStore interface {
	// CreateNode mints an ID of the given type, stamps timestamps and persists n.
	CreateNode(ctx context.Context, n models.Node, typ models.NodeType) (models.Node, error)

	// SaveNode upserts a complete record, keeping its ID.
	SaveNode(ctx context.Context, n models.Node) error

	// GetNode returns ErrNotFound for an unknown id.
	GetNode(ctx context.Context, id string) (models.Node, error)

	// ListNodes returns every node in insertion order.
	ListNodes(ctx context.Context) ([]models.Node, error)

	ListByField(ctx context.Context, fieldID string) ([]models.Node, error)
	ListByStatus(ctx context.Context, status models.NodeStatus) ([]models.Node, error)
	ListByAuthor(ctx context.Context, author string) ([]models.Node, error)

	// Search is a case-insensitive substring match across the searchable fields.
	Search(ctx context.Context, query string) ([]models.Node, error)

	// SearchAdvanced ANDs every provided filter and sorts the result.
	SearchAdvanced(ctx context.Context, opts models.SearchOptions) ([]models.Node, error)

	// UpdateNode applies patch and returns the stored node, or ErrNotFound.
	UpdateNode(ctx context.Context, id string, patch models.NodePatch) (models.Node, error)

	// DeleteNode removes a node and its back-references, or returns ErrNotFound.
	DeleteNode(ctx context.Context, id string) error

	// Connect records a reciprocal connection: both nodes list each other.
	Connect(ctx context.Context, conn models.Connection) error

	ListFields(ctx context.Context) ([]models.Field, error)
	GetField(ctx context.Context, id string) (models.Field, error)
	SaveField(ctx context.Context, f models.Field) error

	SaveUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, username string) (models.User, error)

	// NextNodeID previews the next ID for typ without consuming it.
	NextNodeID(ctx context.Context, typ models.NodeType) (string, error)
	Counters(ctx context.Context) ([]models.NodeCounter, error)

	// ResyncCounters recomputes every counter from the stored nodes.
	ResyncCounters(ctx context.Context) error

	Stats(ctx context.Context) (models.Stats, error)
	StatsByType(ctx context.Context) ([]models.TypeStats, error)

	Export(ctx context.Context) (models.Snapshot, error)
	Import(ctx context.Context, snap models.Snapshot) error
	ClearAll(ctx context.Context) error

	Close() error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
