package engine

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// previewLen bounds the raw-text preview attached to search hits.
const previewLen = 200

// Search embeds the query text and returns up to limit records ranked by
// ascending cosine distance. Unlike resolution, no distance cutoff applies:
// all neighbors are returned. An empty corpus yields an empty list.
//
// A limit of 0 means the configured default; otherwise it must be within
// [1, MaxSearchLimit].
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer span.End()

	if err := e.validateContent(query); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if limit == 0 {
		limit = e.config.DefaultSearchLimit
	}
	if limit < 1 || limit > e.config.MaxSearchLimit {
		err := fmt.Errorf("%w: limit %d out of range 1..%d", ErrValidation, limit, e.config.MaxSearchLimit)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit))

	embedding, err := e.provider.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	neighbors, err := e.store.QueryNearest(ctx, embedding, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}

	hits := make([]SearchHit, len(neighbors))
	for i, n := range neighbors {
		hits[i] = SearchHit{
			ID:         n.Record.ID,
			Category:   n.Record.Category,
			Severity:   n.Record.Severity,
			Similarity: n.Distance,
			Timestamp:  n.Record.CreatedAt,
			Preview:    preview(n.Record.RawText),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// preview returns the first previewLen characters of text with an ellipsis
// when truncated, without splitting a UTF-8 sequence.
func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
