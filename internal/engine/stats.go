package engine

import (
	"context"
	"fmt"
	"sort"
)

// topCategoryCount caps the top_categories map in statistics.
const topCategoryCount = 5

// Stats aggregates knowledge-base statistics from store metadata.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "Engine.Stats")
	defer span.End()

	summaries, err := e.store.AllMetadata(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading store metadata: %w", err)
	}

	categories := make(map[string]int)
	for _, s := range summaries {
		categories[string(s.Category)]++
	}

	return &Stats{
		TotalFailures: len(summaries),
		Categories:    categories,
		TopCategories: topCategories(categories, topCategoryCount),
	}, nil
}

// Healthy probes the store and reports engine liveness.
func (e *Engine) Healthy(ctx context.Context) *Health {
	h := &Health{
		Status:             "healthy",
		ProviderConfigured: e.provider.Configured(),
	}

	count, err := e.store.Count(ctx)
	if err != nil {
		h.Status = "unhealthy"
		return h
	}

	h.TotalFailures = count
	return h
}

// topCategories selects the n largest entries by count. Ties break by
// category name so the selection is deterministic.
func topCategories(categories map[string]int, n int) map[string]int {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(categories))
	for name, count := range categories {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	top := make(map[string]int, len(entries))
	for _, e := range entries {
		top[e.name] = e.count
	}
	return top
}
