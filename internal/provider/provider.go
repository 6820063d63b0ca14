// Package provider adapts the language-model capability behind two calls:
// Embed (text to vector) and Narrate (failure log to explanation).
//
// The backing API is OpenAI-compatible via langchaingo, so the same adapter
// serves OpenAI itself or any compatible endpoint (TEI, local gateways).
// Both calls are slow external I/O and are never retried here; a failure
// aborts the caller's resolution with ErrUnavailable. Retries, if wanted,
// belong to the caller or its infrastructure.
package provider

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// ErrUnavailable indicates the embedding or narrative capability is
// unreachable or misconfigured. Fatal for the current request; callers
// should report it as "service unavailable", not "bad input".
var ErrUnavailable = errors.New("explanation provider unavailable")

const narratePrompt = "You are a CI/CD failure expert. Analyze this failure log " +
	"and explain the root cause, its impact, and how to fix it:\n\n"

// Config holds configuration for the provider adapter.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL.
	// Default: "https://api.openai.com/v1"
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the API. When empty the adapter is
	// unconfigured: it constructs fine (so the daemon can still serve
	// health and stats) but every call fails with ErrUnavailable.
	APIKey string `koanf:"api_key"`

	// EmbeddingModel is the embedding model name.
	// Default: "text-embedding-3-small"
	EmbeddingModel string `koanf:"embedding_model"`

	// ChatModel is the narrative-generation model name.
	// Default: "gpt-4o-mini"
	ChatModel string `koanf:"chat_model"`

	// NarrateMaxChars bounds how much log text is sent for narration.
	// Longer input is truncated silently; classification elsewhere always
	// runs on the full text. Default: 6000.
	NarrateMaxChars int `koanf:"narrate_max_chars"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o-mini"
	}
	if c.NarrateMaxChars == 0 {
		c.NarrateMaxChars = 6000
	}
}

// Service implements Embed and Narrate over one langchaingo OpenAI client.
type Service struct {
	llm      *openai.LLM
	embedder *embeddings.EmbedderImpl
	config   Config
	logger   *zap.Logger
}

// NewService creates a provider adapter with the given configuration.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	s := &Service{config: config, logger: logger}

	if config.APIKey == "" {
		logger.Warn("provider API key not set; resolution of novel failures will be unavailable")
		return s, nil
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	s.llm = llm
	s.embedder = embedder
	return s, nil
}

// Configured reports whether the backing capability has credentials.
func (s *Service) Configured() bool {
	return s.llm != nil
}

// Embed maps text to a fixed-dimension vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: API key not configured", ErrUnavailable)
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %v", ErrUnavailable, err)
	}

	return vector, nil
}

// Narrate produces an explanation (root cause, impact, fix) for a failure
// log. Input beyond NarrateMaxChars is truncated before being sent.
func (s *Service) Narrate(ctx context.Context, text string) (string, error) {
	if s.llm == nil {
		return "", fmt.Errorf("%w: API key not configured", ErrUnavailable)
	}

	prompt := narratePrompt + truncate(text, s.config.NarrateMaxChars)

	narrative, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return "", fmt.Errorf("%w: narrative request failed: %v", ErrUnavailable, err)
	}

	return narrative, nil
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
