// Package kv provides the small persistent key-value port used for node
// records, counters, drafts and UI flags.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when the key has never been set or was deleted.
var ErrKeyNotFound = errors.New("key not found")

// Well-known keys.
const (
	KeyNodes          = "fieldnodes_nodes"
	KeyFields         = "fieldnodes_fields"
	KeyUsers          = "fieldnodes_users"
	KeyNodeCounters   = "fieldnodes_node_counters"
	KeyTypewriterSeen = "fieldnodes-typewriter-seen"
	KeyTheme          = "fieldnodes-theme"
	KeyLastHelp       = "fieldnodes-last-help"
	KeyRawNodeDraft   = "rawNodeDraft"
)

// Store is get/set/delete by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetOr returns the stored value or def when the key is absent.
func GetOr(ctx context.Context, s Store, key, def string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	return v, err
}

// Flag reports whether key holds the string "true".
func Flag(ctx context.Context, s Store, key string) (bool, error) {
	v, err := GetOr(ctx, s, key, "")
	return v == "true", err
}
