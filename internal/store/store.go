// Package store persists failure knowledge behind a stable adapter.
//
// A store holds immutable FailureRecords keyed by a content fingerprint
// and supports exact lookup, nearest-neighbor queries by embedding, and a
// uniqueness-enforcing insert. Two implementations exist: ChromemStore
// (embedded, default) and QdrantStore (external gRPC server), selected by
// the New factory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/failbank/internal/classify"
)

// Sentinel errors for store operations.
var (
	// ErrDuplicateID is returned by Insert when a record with the same
	// fingerprint already exists. Records are immutable; the store rejects
	// the write instead of overwriting.
	ErrDuplicateID = errors.New("record with this id already exists")

	// ErrDimensionMismatch indicates an embedding whose dimensionality does
	// not match the store's configured vector size. This is fatal: mixed
	// dimensions corrupt distance computations for the whole corpus.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid store configuration")
)

// FailureRecord is one persisted unit of failure knowledge.
//
// Records are created exactly once, on first ingestion of a given log text,
// and are never updated or deleted afterwards.
type FailureRecord struct {
	// ID is the content fingerprint of RawText (see Fingerprint). It doubles
	// as the idempotency key for ingestion.
	ID string

	// RawText is the original submitted log content.
	RawText string

	// Embedding is the vector representation of RawText. Its length must
	// equal the store's configured vector size.
	Embedding []float32

	Category     classify.Category
	Severity     classify.Severity
	Analysis     string
	SuggestedFix string

	// CreatedAt is set once at insert time.
	CreatedAt time.Time
}

// Neighbor is a record returned by a nearest-neighbor query together with
// its cosine distance from the query embedding (0 = identical direction).
type Neighbor struct {
	Record   FailureRecord
	Distance float64
}

// Summary is a lightweight view of a record used for statistics.
type Summary struct {
	ID        string
	Category  classify.Category
	Severity  classify.Severity
	CreatedAt time.Time
}

// Store is the persistence contract for failure knowledge.
//
// Insert is the only mutating operation in the system and is durable
// before it returns. Implementations enforce ID uniqueness atomically
// (check-and-set), which is what makes the engine's first-writer-wins
// recovery on concurrent inserts correct.
type Store interface {
	// LookupExact returns the record with the given fingerprint, or
	// (nil, nil) when no such record exists.
	LookupExact(ctx context.Context, id string) (*FailureRecord, error)

	// QueryNearest returns up to k stored records ordered by ascending
	// cosine distance from the embedding. An empty corpus yields an empty
	// slice, never an error.
	QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error)

	// Insert durably persists a new record. It fails with ErrDuplicateID if
	// a record with the same ID exists and with ErrDimensionMismatch if the
	// embedding length differs from the configured vector size.
	Insert(ctx context.Context, rec *FailureRecord) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// AllMetadata returns a summary for every stored record.
	AllMetadata(ctx context.Context) ([]Summary, error)

	// Close releases store resources.
	Close() error
}
