package engine

import (
	"time"

	"github.com/fyrsmithlabs/failbank/internal/classify"
)

// MatchType identifies which resolution tier produced a result.
type MatchType string

const (
	// MatchExact means the exact text was seen before; the stored record
	// was returned without any provider call.
	MatchExact MatchType = "Exact match"

	// MatchVector means a semantically similar record was close enough to
	// reuse. Nothing was persisted.
	MatchVector MatchType = "Vector match"

	// MatchNovel means no prior knowledge applied; a fresh analysis was
	// generated and a new record persisted.
	MatchNovel MatchType = "LLM new analysis"
)

// SimilarFailure is neighbor context attached to a vector match.
type SimilarFailure struct {
	Category   classify.Category `json:"category"`
	Similarity float64           `json:"similarity"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Result is the outcome of resolving one failure log. It is transient;
// only FailureRecords are persisted.
type Result struct {
	Category     classify.Category `json:"category"`
	Severity     classify.Severity `json:"severity"`
	Analysis     string            `json:"analysis"`
	SuggestedFix string            `json:"suggested_fix"`
	MatchType    MatchType         `json:"match_type"`

	// Similarity is the cosine distance to the matched record: 0.0 for an
	// exact match, the neighbor distance for a vector match, nil for a
	// novel analysis.
	Similarity *float64 `json:"similarity"`

	Timestamp time.Time `json:"timestamp"`

	// SimilarFailures carries up to the configured neighbor count of
	// nearby records for caller context. Only set on vector matches.
	SimilarFailures []SimilarFailure `json:"similar_failures,omitempty"`
}

// SearchHit is one ranked entry returned by Search.
type SearchHit struct {
	ID         string            `json:"id"`
	Category   classify.Category `json:"category"`
	Severity   classify.Severity `json:"severity"`
	Similarity float64           `json:"similarity"`
	Timestamp  time.Time         `json:"timestamp"`
	Preview    string            `json:"preview"`
}

// Stats summarizes the knowledge base.
type Stats struct {
	TotalFailures int            `json:"total_failures"`
	Categories    map[string]int `json:"categories"`
	TopCategories map[string]int `json:"top_categories"`
}

// Health reports engine liveness for the health endpoint.
type Health struct {
	Status             string `json:"status"`
	TotalFailures      int    `json:"total_failures"`
	ProviderConfigured bool   `json:"provider_configured"`
}
