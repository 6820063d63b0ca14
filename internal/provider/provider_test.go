package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, 6000, cfg.NarrateMaxChars)
}

func TestNewService_WithoutAPIKey(t *testing.T) {
	s, err := NewService(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, s.Configured())

	_, err = s.Embed(context.Background(), "some log")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Narrate(context.Background(), "some log")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewService_WithAPIKey(t *testing.T) {
	s, err := NewService(Config{APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, s.Configured())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exactly at limit", "abcde", 5, "abcde"},
		{"over limit", "abcdef", 3, "abc"},
		{"zero limit passes through", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}
}

// Truncation must never split a multi-byte rune.
func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 3) + "ü" // 'ü' is 2 bytes starting at offset 3
	out := truncate(s, 4)
	assert.Equal(t, "aaa", out)
	assert.True(t, strings.HasPrefix(s, out))
}
