// Package engine implements the three-tier failure resolution protocol.
//
// An incoming log resolves through short-circuiting tiers:
//
//  1. Exact: the content fingerprint already exists in the store. Cheapest
//     and fully deterministic, so it runs first and never triggers an
//     embedding call — the common CI pattern of the same failure recurring
//     across retries costs nothing after the first hit.
//  2. Semantic: the log is embedded and the nearest stored neighbor is
//     closer than the similarity threshold. Read-only; the neighbor's
//     stored analysis is reused.
//  3. Novel: a narrative is generated, the rule classifier categorizes the
//     full text, and a new immutable record is persisted.
//
// The engine is stateless between calls; all durable state lives in the
// store, and concurrent resolutions on different fingerprints proceed in
// parallel with no shared locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failbank/internal/classify"
	"github.com/fyrsmithlabs/failbank/internal/store"
)

// ErrValidation indicates rejected input: empty, oversized, or undecodable
// content, or an out-of-range search limit. Checked before any store or
// provider call is made.
var ErrValidation = errors.New("invalid input")

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

var tracer = otel.Tracer("failbank.engine")

// Provider is the language-model capability the engine depends on.
type Provider interface {
	// Embed maps text to a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Narrate produces an explanation for a failure log.
	Narrate(ctx context.Context, text string) (string, error)

	// Configured reports whether the capability has credentials.
	Configured() bool
}

// Config holds the engine's policy constants.
type Config struct {
	// SimilarityThreshold is the cosine-distance cutoff for tier 2. A
	// neighbor strictly below it is treated as a semantic duplicate. This
	// is a tunable precision/recall policy, not a structural invariant:
	// too low duplicates knowledge entries, too high suggests wrong fixes.
	// Default: 0.25.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// Neighbors is how many nearest neighbors tier 2 requests and attaches
	// as context. Default: 3.
	Neighbors int `koanf:"neighbors"`

	// MaxContentBytes is the input size ceiling. Default: 100000.
	MaxContentBytes int `koanf:"max_content_bytes"`

	// DefaultSearchLimit applies when a search request omits the limit.
	// Default: 5.
	DefaultSearchLimit int `koanf:"default_search_limit"`

	// MaxSearchLimit bounds the search limit. Default: 20.
	MaxSearchLimit int `koanf:"max_search_limit"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.25
	}
	if c.Neighbors == 0 {
		c.Neighbors = 3
	}
	if c.MaxContentBytes == 0 {
		c.MaxContentBytes = 100_000
	}
	if c.DefaultSearchLimit == 0 {
		c.DefaultSearchLimit = 5
	}
	if c.MaxSearchLimit == 0 {
		c.MaxSearchLimit = 20
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 2 {
		return fmt.Errorf("similarity threshold must be in (0, 2], got %v", c.SimilarityThreshold)
	}
	if c.Neighbors < 1 {
		return fmt.Errorf("neighbors must be at least 1, got %d", c.Neighbors)
	}
	if c.MaxContentBytes < 1 {
		return fmt.Errorf("max content bytes must be positive, got %d", c.MaxContentBytes)
	}
	if c.DefaultSearchLimit < 1 || c.DefaultSearchLimit > c.MaxSearchLimit {
		return fmt.Errorf("default search limit %d out of range 1..%d", c.DefaultSearchLimit, c.MaxSearchLimit)
	}
	return nil
}

// Engine orchestrates resolution over an injected store and provider.
type Engine struct {
	store    store.Store
	provider Provider
	config   Config
	logger   *zap.Logger
}

// New creates an Engine with injected dependencies.
func New(st store.Store, p Provider, config Config, logger *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Engine{
		store:    st,
		provider: p,
		config:   config,
		logger:   logger,
	}, nil
}

// Resolve classifies one failure log and returns a remediation suggestion,
// consulting and growing the knowledge base per the tier protocol.
func (e *Engine) Resolve(ctx context.Context, content string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Resolve")
	defer span.End()

	start := timeNow()

	if err := e.validateContent(content); err != nil {
		span.SetStatus(codes.Error, err.Error())
		observeResolution("rejected", timeNow().Sub(start), err)
		return nil, err
	}

	result, err := e.resolve(ctx, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observeResolution("error", timeNow().Sub(start), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("match_type", string(result.MatchType)),
		attribute.String("category", string(result.Category)),
	)
	observeResolution(string(result.MatchType), timeNow().Sub(start), nil)

	return result, nil
}

func (e *Engine) resolve(ctx context.Context, content string) (*Result, error) {
	id := store.Fingerprint(content)
	log := e.logger.With(zap.String("fingerprint", id))

	// Tier 1: exact match. Byte-identical content never re-invokes the
	// provider and never creates a second record.
	rec, err := e.store.LookupExact(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	if rec != nil {
		log.Info("resolved failure", zap.String("match_type", string(MatchExact)))
		return exactResult(rec), nil
	}

	// Tier 2: semantic match.
	embedding, err := e.provider.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	neighbors, err := e.store.QueryNearest(ctx, embedding, e.config.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}

	// Strict inequality: a neighbor exactly at the threshold does not match.
	if len(neighbors) > 0 && neighbors[0].Distance < e.config.SimilarityThreshold {
		nearest := neighbors[0]
		log.Info("resolved failure",
			zap.String("match_type", string(MatchVector)),
			zap.Float64("distance", nearest.Distance),
		)

		similar := make([]SimilarFailure, 0, len(neighbors))
		for _, n := range neighbors {
			similar = append(similar, SimilarFailure{
				Category:   n.Record.Category,
				Similarity: n.Distance,
				Timestamp:  n.Record.CreatedAt,
			})
		}

		distance := nearest.Distance
		return &Result{
			Category:        nearest.Record.Category,
			Severity:        nearest.Record.Severity,
			Analysis:        nearest.Record.Analysis,
			SuggestedFix:    nearest.Record.SuggestedFix,
			MatchType:       MatchVector,
			Similarity:      &distance,
			Timestamp:       nearest.Record.CreatedAt,
			SimilarFailures: similar,
		}, nil
	}

	// Tier 3: novel failure. Generate, classify, persist.
	analysis, err := e.provider.Narrate(ctx, content)
	if err != nil {
		return nil, err
	}

	category, severity := classify.Classify(content)

	rec = &store.FailureRecord{
		ID:           id,
		RawText:      content,
		Embedding:    embedding,
		Category:     category,
		Severity:     severity,
		Analysis:     analysis,
		SuggestedFix: classify.SuggestedFix(category),
		CreatedAt:    timeNow().UTC(),
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		// A concurrent resolution of the same text won the insert race.
		// First-writer-wins: return the existing record as an exact match.
		if errors.Is(err, store.ErrDuplicateID) {
			existing, lookupErr := e.store.LookupExact(ctx, id)
			if lookupErr != nil {
				return nil, fmt.Errorf("lookup after duplicate insert: %w", lookupErr)
			}
			if existing == nil {
				return nil, fmt.Errorf("record %s vanished after duplicate insert", id)
			}
			log.Info("lost insert race, returning existing record")
			return exactResult(existing), nil
		}
		return nil, fmt.Errorf("inserting record: %w", err)
	}

	log.Info("resolved failure",
		zap.String("match_type", string(MatchNovel)),
		zap.String("category", string(category)),
	)

	return &Result{
		Category:     rec.Category,
		Severity:     rec.Severity,
		Analysis:     rec.Analysis,
		SuggestedFix: rec.SuggestedFix,
		MatchType:    MatchNovel,
		Similarity:   nil,
		Timestamp:    rec.CreatedAt,
	}, nil
}

// exactResult builds a Result from a stored record, verbatim.
func exactResult(rec *store.FailureRecord) *Result {
	zero := 0.0
	return &Result{
		Category:     rec.Category,
		Severity:     rec.Severity,
		Analysis:     rec.Analysis,
		SuggestedFix: rec.SuggestedFix,
		MatchType:    MatchExact,
		Similarity:   &zero,
		Timestamp:    rec.CreatedAt,
	}
}

// validateContent rejects bad input before any store or provider work.
func (e *Engine) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if len(content) > e.config.MaxContentBytes {
		return fmt.Errorf("%w: content is %d bytes, limit is %d",
			ErrValidation, len(content), e.config.MaxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrValidation)
	}
	return nil
}
