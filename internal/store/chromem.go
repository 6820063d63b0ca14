package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failbank/internal/classify"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("failbank.store.chromem")

// Metadata keys under which record fields are stored alongside the vector.
const (
	metaCategory     = "category"
	metaSeverity     = "severity"
	metaAnalysis     = "analysis"
	metaSuggestedFix = "suggested_fix"
	metaCreatedAt    = "created_at"
)

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/failbank/store"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Collection is the collection name holding failure records.
	// Default: "cicd_failures"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension. Must match the
	// embedding provider's output dimension.
	// Default: 1536 (text-embedding-3-small)
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/failbank/store"
	}
	if c.Collection == "" {
		c.Collection = "cicd_failures"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, synchronous persistence to
// gob files. Record fields travel in document metadata; the raw log text
// is the document content.
//
// Uniqueness: chromem itself overwrites on duplicate IDs, so Insert holds
// an internal mutex around its existence check and add. That serializes
// inserts for the whole store, which is acceptable because insert is rare
// (novel failures only) while lookups and queries stay lock-free.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// writeMu makes the check-and-add in Insert atomic.
	writeMu sync.Mutex
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc is registered with chromem but never invoked: every add
// and query supplies a precomputed embedding, keeping the store free of
// provider knowledge.
func embeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("store does not generate embeddings")
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return c, nil
}

// LookupExact returns the record with the given fingerprint, or (nil, nil)
// when no such record exists.
func (s *ChromemStore) LookupExact(ctx context.Context, id string) (*FailureRecord, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.LookupExact")
	defer span.End()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := collection.GetByID(ctx, id)
	if err != nil {
		// chromem only errors here when the ID is absent; treat it as a miss.
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	}

	rec := recordFromDocument(doc)
	span.SetAttributes(attribute.Bool("found", true))
	return &rec, nil
}

// QueryNearest returns up to k records ordered by ascending cosine distance.
func (s *ChromemStore) QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.QueryNearest")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, store configured for %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// chromem requires nResults <= doc count.
	docCount := collection.Count()
	if docCount == 0 {
		return []Neighbor{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	// chromem orders by descending similarity, which is ascending cosine
	// distance once converted.
	neighbors := make([]Neighbor, len(results))
	for i, r := range results {
		neighbors[i] = Neighbor{
			Record:   recordFromDocument(chromem.Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Embedding: r.Embedding}),
			Distance: distanceFromSimilarity(r.Similarity),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(neighbors)))
	s.logger.Debug("queried chromem collection",
		zap.Int("k", k),
		zap.Int("results", len(neighbors)),
	)

	return neighbors, nil
}

// Insert durably persists a new record, rejecting duplicates.
func (s *ChromemStore) Insert(ctx context.Context, rec *FailureRecord) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", rec.ID))

	if rec.ID == "" {
		return fmt.Errorf("record id required")
	}
	if len(rec.Embedding) != s.config.VectorSize {
		return fmt.Errorf("%w: got %d, store configured for %d",
			ErrDimensionMismatch, len(rec.Embedding), s.config.VectorSize)
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	// chromem overwrites on duplicate IDs, so the existence check and the
	// add must happen under one lock to get check-and-set semantics.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := collection.GetByID(ctx, rec.ID); err == nil {
		span.SetStatus(codes.Error, "duplicate id")
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.RawText,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			metaCategory:     string(rec.Category),
			metaSeverity:     string(rec.Severity),
			metaAnalysis:     rec.Analysis,
			metaSuggestedFix: rec.SuggestedFix,
			metaCreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if err := collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document: %w", err)
	}

	s.logger.Debug("inserted failure record",
		zap.String("id", rec.ID),
		zap.String("category", string(rec.Category)),
	)

	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	collection, err := s.collection()
	if err != nil {
		return 0, err
	}
	return collection.Count(), nil
}

// AllMetadata returns a summary for every stored record.
//
// chromem has no document enumeration API, so this runs an exact query for
// the full corpus against a probe vector. Acceptable for a statistics path
// over a knowledge base of this scale.
func (s *ChromemStore) AllMetadata(ctx context.Context) ([]Summary, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AllMetadata")
	defer span.End()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []Summary{}, nil
	}

	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := collection.QueryEmbedding(ctx, probe, docCount, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enumerating collection %s: %w", s.config.Collection, err)
	}

	summaries := make([]Summary, len(results))
	for i, r := range results {
		summaries[i] = Summary{
			ID:        r.ID,
			Category:  classify.Category(r.Metadata[metaCategory]),
			Severity:  classify.Severity(r.Metadata[metaSeverity]),
			CreatedAt: parseCreatedAt(r.Metadata[metaCreatedAt]),
		}
	}

	span.SetAttributes(attribute.Int("records", len(summaries)))
	return summaries, nil
}

// Close releases store resources. chromem persists synchronously, so there
// is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// recordFromDocument rebuilds a FailureRecord from a stored chromem document.
func recordFromDocument(doc chromem.Document) FailureRecord {
	return FailureRecord{
		ID:           doc.ID,
		RawText:      doc.Content,
		Embedding:    doc.Embedding,
		Category:     classify.Category(doc.Metadata[metaCategory]),
		Severity:     classify.Severity(doc.Metadata[metaSeverity]),
		Analysis:     doc.Metadata[metaAnalysis],
		SuggestedFix: doc.Metadata[metaSuggestedFix],
		CreatedAt:    parseCreatedAt(doc.Metadata[metaCreatedAt]),
	}
}

// distanceFromSimilarity converts a cosine similarity score into cosine
// distance, clamping float noise below zero.
func distanceFromSimilarity(similarity float32) float64 {
	d := 1 - float64(similarity)
	if d < 0 {
		return 0
	}
	return d
}

func parseCreatedAt(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ Store = (*ChromemStore)(nil)
