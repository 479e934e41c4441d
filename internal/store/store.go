// Package store persists measurement rows and comparison results in SQLite.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

// Store defines the persistence interface for measurements and comparisons.
// Implementations must be safe for concurrent use.
type Store interface {
	// EncoderID returns the lookup id for an encoder name, inserting it on
	// first use.
	EncoderID(name string) (int64, error)

	// VideoID returns the lookup id for a video name, inserting it on first
	// use.
	VideoID(name string) (int64, error)

	// UpsertMeasurements persists every row of t in a single transaction.
	// Rows are keyed by (encoder, commit, preset, video, bitrate); an
	// existing row is updated in place. Returns the number of rows written.
	UpsertMeasurements(t *metrics.Table) (int, error)

	// LoadMeasurements returns all stored measurements as a table over
	// schema, in insertion order.
	LoadMeasurements(schema metrics.Schema) (*metrics.Table, error)

	// UpsertComparisons persists rows as one batch stamped with runID and
	// createdAt. Rows are keyed by baseline, target and video; re-uploading
	// replaces the earlier values and batch stamp.
	UpsertComparisons(rows []compare.Row, runID uuid.UUID, createdAt time.Time) (int, error)

	// Comparisons returns stored comparison rows matching f.
	Comparisons(f ComparisonFilter) ([]Comparison, error)

	// Close closes the store and releases resources.
	Close() error
}

// Comparison is a stored comparison row with its batch stamp.
type Comparison struct {
	compare.Row
	RunID     uuid.UUID
	CreatedAt time.Time
}

// ComparisonFilter narrows Comparisons. Zero fields match everything.
type ComparisonFilter struct {
	Video        string
	TargetCommit string
	RunID        uuid.UUID
}
