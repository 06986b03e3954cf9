package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"economiza/internal/platform/config"
	"economiza/internal/platform/metrics"
	"economiza/internal/product"
	"economiza/internal/product/store"
	"economiza/pkg/platform/sentinel"
)

// Resolution strategies, in pipeline order.
const (
	StrategyBarcode   = "barcode"
	StrategyFuzzy     = "fuzzy"
	StrategyEmbedding = "embedding"
	StrategyCreated   = "created"
)

// Resolver maps a line description to a stable product identity. It always
// produces an identity for valid input; unknown products are created rather
// than rejected, so receipt ingestion never stalls on catalog gaps.
type Resolver struct {
	catalog store.Catalog
	// embedder may be nil, which disables the embedding stage entirely.
	embedder           Embedder
	fuzzyThreshold     float64
	embeddingThreshold float64
	logger             *slog.Logger
	metrics            *metrics.Metrics
}

func NewResolver(catalog store.Catalog, embedder Embedder, cfg config.MatcherConfig, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		catalog:            catalog,
		embedder:           embedder,
		fuzzyThreshold:     cfg.FuzzyThreshold,
		embeddingThreshold: cfg.EmbeddingThreshold,
		logger:             logger,
		metrics:            m,
	}
}

// Resolve runs the matching cascade: exact barcode, fuzzy normalized-name
// score, embedding similarity, then creation. The same description with the
// same catalog state always resolves to the same identity; fuzzy ties go to
// the earliest-created product.
func (r *Resolver) Resolve(ctx context.Context, description, barcode string) (*product.Identity, string, error) {
	if barcode != "" {
		p, err := r.catalog.FindByBarcode(ctx, barcode)
		if err == nil {
			r.metrics.RecordResolution(StrategyBarcode)
			return p, StrategyBarcode, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", fmt.Errorf("barcode lookup: %w", err)
		}
	}

	normalized := product.NormalizeName(description)
	if normalized == "" {
		// Descriptions made entirely of quantities and packaging words
		// still need an identity.
		normalized = strings.ToLower(strings.TrimSpace(description))
	}
	if normalized == "" {
		return nil, "", fmt.Errorf("resolve product: %w: empty description", sentinel.ErrInvalidState)
	}

	candidates, err := r.catalog.All(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list catalog: %w", err)
	}

	if p := r.bestFuzzyMatch(normalized, candidates); p != nil {
		r.backfillBarcode(ctx, p, barcode)
		r.metrics.RecordResolution(StrategyFuzzy)
		return p, StrategyFuzzy, nil
	}

	if p := r.bestEmbeddingMatch(ctx, normalized, candidates); p != nil {
		r.backfillBarcode(ctx, p, barcode)
		r.metrics.RecordResolution(StrategyEmbedding)
		return p, StrategyEmbedding, nil
	}

	p, err := r.catalog.GetOrCreate(ctx, strings.TrimSpace(description), normalized, barcode)
	if err != nil {
		return nil, "", fmt.Errorf("create product: %w", err)
	}
	r.metrics.RecordResolution(StrategyCreated)
	return p, StrategyCreated, nil
}

// bestFuzzyMatch scans candidates in creation order and keeps the first
// candidate holding the highest score at or above the threshold.
func (r *Resolver) bestFuzzyMatch(normalized string, candidates []*product.Identity) *product.Identity {
	var best *product.Identity
	bestScore := 0.0
	for _, c := range candidates {
		score := WeightedRatio(normalized, c.NormalizedName)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil || bestScore < r.fuzzyThreshold {
		return nil
	}
	return best
}

// bestEmbeddingMatch asks the embedder for the query and all candidate
// vectors in one batch. Any embedding failure downgrades to no match; the
// pipeline falls through to creation instead of failing the receipt.
func (r *Resolver) bestEmbeddingMatch(ctx context.Context, normalized string, candidates []*product.Identity) *product.Identity {
	if r.embedder == nil || len(candidates) == 0 {
		return nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, normalized)
	for _, c := range candidates {
		texts = append(texts, c.NormalizedName)
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		r.logger.WarnContext(ctx, "embedding lookup failed, skipping stage", "error", err.Error())
		return nil
	}

	query := vectors[0]
	var best *product.Identity
	bestScore := 0.0
	for i, c := range candidates {
		score := cosineSimilarity(query, vectors[i+1])
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil || bestScore < r.embeddingThreshold {
		return nil
	}
	return best
}

// backfillBarcode attaches a barcode learned from this receipt to a product
// matched by name. Failures only log; the match already succeeded.
func (r *Resolver) backfillBarcode(ctx context.Context, p *product.Identity, barcode string) {
	if barcode == "" || p.Barcode != "" {
		return
	}
	if err := r.catalog.SetBarcode(ctx, p.ID, barcode); err != nil {
		r.logger.WarnContext(ctx, "barcode backfill failed",
			"product_id", p.ID.String(),
			"error", err.Error(),
		)
		return
	}
	p.Barcode = barcode
}
