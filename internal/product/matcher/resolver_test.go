package matcher

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"economiza/internal/platform/config"
	"economiza/internal/product/store"
)

type stubEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func testConfig() config.MatcherConfig {
	return config.MatcherConfig{FuzzyThreshold: 85, EmbeddingThreshold: 0.7}
}

func newTestResolver(catalog store.Catalog, embedder Embedder, cfg config.MatcherConfig) *Resolver {
	return NewResolver(catalog, embedder, cfg, slog.New(slog.DiscardHandler), nil)
}

func TestResolveByBarcode(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	seeded, err := catalog.GetOrCreate(ctx, "ARROZ TIPO 1 5KG", "arroz", "7890001112223")
	require.NoError(t, err)

	r := newTestResolver(catalog, nil, testConfig())
	p, strategy, err := r.Resolve(ctx, "COMPLETELY DIFFERENT NAME", "7890001112223")
	require.NoError(t, err)
	assert.Equal(t, StrategyBarcode, strategy)
	assert.Equal(t, seeded.ID, p.ID)
}

func TestResolveByFuzzyMatchBackfillsBarcode(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	seeded, err := catalog.GetOrCreate(ctx, "ACUCAR CRISTAL 1KG", "acucar cristal", "")
	require.NoError(t, err)

	r := newTestResolver(catalog, nil, testConfig())
	p, strategy, err := r.Resolve(ctx, "ACUCAR CRISTA 2KG", "7891910000197")
	require.NoError(t, err)
	assert.Equal(t, StrategyFuzzy, strategy)
	assert.Equal(t, seeded.ID, p.ID)
	assert.Equal(t, "7891910000197", p.Barcode)

	// The backfilled barcode now serves exact lookups.
	byBarcode, err := catalog.FindByBarcode(ctx, "7891910000197")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, byBarcode.ID)
}

func TestResolveFuzzyTieGoesToEarliestProduct(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	first, err := catalog.GetOrCreate(ctx, "ARROZ", "arroz", "")
	require.NoError(t, err)
	_, err = catalog.GetOrCreate(ctx, "ARROS", "arros", "")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.FuzzyThreshold = 60

	r := newTestResolver(catalog, nil, cfg)

	// "arrow" is one edit from both candidates; the earliest-created wins.
	for i := 0; i < 5; i++ {
		p, strategy, err := r.Resolve(ctx, "ARROW", "")
		require.NoError(t, err)
		assert.Equal(t, StrategyFuzzy, strategy)
		assert.Equal(t, first.ID, p.ID)
	}
}

func TestResolveCreatesWhenNothingMatches(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	r := newTestResolver(catalog, nil, testConfig())

	p, strategy, err := r.Resolve(ctx, "DETERGENTE LIQUIDO 500ML", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyCreated, strategy)
	assert.Equal(t, "detergente liquido", p.NormalizedName)

	// Resolving the same description again returns the same identity.
	again, strategy, err := r.Resolve(ctx, "DETERGENTE LIQUIDO 500ML", "")
	require.NoError(t, err)
	assert.NotEqual(t, StrategyCreated, strategy)
	assert.Equal(t, p.ID, again.ID)
}

func TestResolveByEmbedding(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	seeded, err := catalog.GetOrCreate(ctx, "REFRIGERANTE COLA 2L", "refrigerante cola", "")
	require.NoError(t, err)

	embedder := &stubEmbedder{vectors: map[string][]float64{
		"bebida gaseificada cola": {1, 0, 0},
		"refrigerante cola":       {0.95, 0.05, 0},
	}}

	r := newTestResolver(catalog, embedder, testConfig())
	p, strategy, err := r.Resolve(ctx, "BEBIDA GASEIFICADA COLA", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyEmbedding, strategy)
	assert.Equal(t, seeded.ID, p.ID)
	assert.Equal(t, 1, embedder.calls)
}

func TestResolveEmbeddingFailureFallsThroughToCreate(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	_, err := catalog.GetOrCreate(ctx, "REFRIGERANTE COLA 2L", "refrigerante cola", "")
	require.NoError(t, err)

	embedder := &stubEmbedder{err: errors.New("endpoint down")}

	r := newTestResolver(catalog, embedder, testConfig())
	p, strategy, err := r.Resolve(ctx, "BEBIDA GASEIFICADA COLA", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyCreated, strategy)
	assert.Equal(t, "bebida gaseificada cola", p.NormalizedName)
}

func TestResolveNoiseOnlyDescription(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	r := newTestResolver(catalog, nil, testConfig())

	p, strategy, err := r.Resolve(ctx, "1 KG UN", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyCreated, strategy)
	assert.Equal(t, "1 kg un", p.NormalizedName)
}
