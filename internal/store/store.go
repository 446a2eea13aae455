// Package store defines the persistence surface for the three record
// stores (best records, timestamps, diffs) and provides an in-memory and a
// sqlite-backed implementation. Semantics are read / whole-value replace per
// chart key; the reconciliation engine owns all field-level rules.
package store

import (
	"context"
	"errors"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// ErrNotFound is returned when a key has no record in the store.
var ErrNotFound = errors.New("not found")

// Reader reads records by chart key.
type Reader interface {
	// Get returns the best record and timestamps for a key, or ErrNotFound.
	Get(ctx context.Context, key chart.Key) (chart.ScoreRecord, chart.Timestamps, error)
	// GetDiff returns the accumulated diff for a key, or ErrNotFound.
	GetDiff(ctx context.Context, key chart.Key) (chart.Diff, error)
	// Snapshot returns the full contents of all three stores.
	Snapshot(ctx context.Context) (chart.Snapshot, error)
}

// Writer replaces records by chart key. Implementations replace whole
// values; they never merge fields.
type Writer interface {
	Put(ctx context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps) error
	// PutWithDiff writes the record, its timestamps, and the key's diff in
	// one atomic step: either all three land or none do. A nil d removes
	// the key's diff instead of setting it.
	PutWithDiff(ctx context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps, d *chart.Diff) error
	PutDiff(ctx context.Context, key chart.Key, d chart.Diff) error
	ClearDiff(ctx context.Context, key chart.Key) error
	// ClearDiffs empties the diff store (the user's "reset my recent
	// improvements" action).
	ClearDiffs(ctx context.Context) error
	// Restore replaces the entire contents of all three stores, all or
	// nothing. Timestamps ride on their record: a Times entry whose key has
	// no Best record is dropped.
	Restore(ctx context.Context, s chart.Snapshot) error
}

// Store is the full persistence surface.
type Store interface {
	Reader
	Writer
	Close() error
}
