// Package cache is the on-disk action cache: a SQLite index mapping an
// action_key to its recorded output digests, backing pkg/actionexec's
// lookup-before-execute protocol.
package cache

import (
	"context"
	"time"

	"github.com/buildtool/buildtool/pkg/artifact"
)

// OutputEntry is one output's recorded identity and digest within a
// cached action's Record.
type OutputEntry struct {
	// Path is the output's exec-root-relative path.
	Path   string
	Digest artifact.Digest
}

// Record is what the action cache stores per action_key: the complete set
// of output digests an earlier execution produced.
type Record struct {
	ActionKey string
	Outputs   []OutputEntry
	CreatedAt time.Time
}

// Cache is the action cache's storage contract. Implementations must be
// safe for concurrent use, since many actions look themselves up in
// parallel from the evaluator's worker pool.
type Cache interface {
	// Lookup returns the record stored for actionKey, if any.
	Lookup(ctx context.Context, actionKey string) (*Record, bool, error)

	// Store persists record, replacing any existing record for the same
	// action_key.
	Store(ctx context.Context, record *Record) error

	Close() error
}
