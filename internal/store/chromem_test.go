package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failbank/internal/classify"
	"github.com/fyrsmithlabs/failbank/internal/store"
)

const testVectorSize = 4

func newTestChromemStore(t *testing.T) *store.ChromemStore {
	t.Helper()

	s, err := store.NewChromemStore(store.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_failures",
		VectorSize: testVectorSize,
	}, zap.NewNop())
	require.NoError(t, err)

	return s
}

// unit returns a unit vector pointing along the given axis.
func unit(axis int) []float32 {
	v := make([]float32, testVectorSize)
	v[axis] = 1
	return v
}

func testRecord(text string, embedding []float32) *store.FailureRecord {
	return &store.FailureRecord{
		ID:           store.Fingerprint(text),
		RawText:      text,
		Embedding:    embedding,
		Category:     classify.CategoryTestFailure,
		Severity:     classify.SeverityHigh,
		Analysis:     "the test suite failed",
		SuggestedFix: "fix the tests",
		CreatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFingerprint(t *testing.T) {
	a := store.Fingerprint("build failed")
	b := store.Fingerprint("build failed")
	c := store.Fingerprint("build failed ")

	assert.Equal(t, a, b, "identical text must produce identical fingerprints")
	assert.NotEqual(t, a, c, "byte-different text must produce different fingerprints")
	assert.Len(t, a, 64, "sha256 hex digest")
}

func TestChromemStore_InsertAndLookup(t *testing.T) {
	s := newTestChromemStore(t)
	ctx := context.Background()

	rec := testRecord("AssertionError: expected 5 got 3", unit(0))
	require.NoError(t, s.Insert(ctx, rec))

	got, err := s.LookupExact(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.RawText, got.RawText)
	assert.Equal(t, rec.Category, got.Category)
	assert.Equal(t, rec.Severity, got.Severity)
	assert.Equal(t, rec.Analysis, got.Analysis)
	assert.Equal(t, rec.SuggestedFix, got.SuggestedFix)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestChromemStore_LookupMiss(t *testing.T) {
	s := newTestChromemStore(t)

	got, err := s.LookupExact(context.Background(), store.Fingerprint("never stored"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChromemStore_InsertDuplicate(t *testing.T) {
	s := newTestChromemStore(t)
	ctx := context.Background()

	rec := testRecord("npm ERR! missing package", unit(1))
	require.NoError(t, s.Insert(ctx, rec))

	err := s.Insert(ctx, rec)
	assert.ErrorIs(t, err, store.ErrDuplicateID)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChromemStore_InsertDimensionMismatch(t *testing.T) {
	s := newTestChromemStore(t)

	rec := testRecord("docker pull failed", []float32{1, 0})
	err := s.Insert(context.Background(), rec)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}

func TestChromemStore_QueryNearest_EmptyCorpus(t *testing.T) {
	s := newTestChromemStore(t)

	neighbors, err := s.QueryNearest(context.Background(), unit(0), 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestChromemStore_QueryNearest_Ordering(t *testing.T) {
	s := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testRecord("log a", unit(0))))
	require.NoError(t, s.Insert(ctx, testRecord("log b", unit(1))))

	neighbors, err := s.QueryNearest(ctx, unit(0), 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	assert.Equal(t, "log a", neighbors[0].Record.RawText)
	assert.InDelta(t, 0.0, neighbors[0].Distance, 1e-5)
	assert.Equal(t, "log b", neighbors[1].Record.RawText)
	assert.InDelta(t, 1.0, neighbors[1].Distance, 1e-5)
	assert.LessOrEqual(t, neighbors[0].Distance, neighbors[1].Distance)
}

func TestChromemStore_QueryNearest_CapsK(t *testing.T) {
	s := newTestChromemStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, testRecord("only one", unit(0))))

	neighbors, err := s.QueryNearest(ctx, unit(0), 10)
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestChromemStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := store.ChromemConfig{Path: dir, Collection: "test_failures", VectorSize: testVectorSize}

	s1, err := store.NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)
	rec := testRecord("persisted failure", unit(2))
	require.NoError(t, s1.Insert(ctx, rec))
	require.NoError(t, s1.Close())

	s2, err := store.NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)
	got, err := s2.LookupExact(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Analysis, got.Analysis)
}

func TestChromemStore_AllMetadata(t *testing.T) {
	s := newTestChromemStore(t)
	ctx := context.Background()

	summaries, err := s.AllMetadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	require.NoError(t, s.Insert(ctx, testRecord("log a", unit(0))))
	require.NoError(t, s.Insert(ctx, testRecord("log b", unit(1))))

	summaries, err = s.AllMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, sum := range summaries {
		assert.Equal(t, classify.CategoryTestFailure, sum.Category)
		assert.NotEmpty(t, sum.ID)
		assert.False(t, sum.CreatedAt.IsZero())
	}
}

func TestNew_FactorySelectsProvider(t *testing.T) {
	s, err := store.New(store.Config{
		Provider: "chromem",
		Chromem:  store.ChromemConfig{Path: t.TempDir(), VectorSize: testVectorSize},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &store.ChromemStore{}, s)

	_, err = store.New(store.Config{Provider: "bolt"}, zap.NewNop())
	assert.ErrorIs(t, err, store.ErrInvalidConfig)
}
