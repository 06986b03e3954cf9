// Package ingest orchestrates the receipt pipeline: QR extraction, provider
// fetch, normalization, product resolution and persistence. It owns the
// idempotency and deferral decisions.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"economiza/internal/ingest/queue"
	"economiza/internal/platform/config"
	"economiza/internal/platform/metrics"
	"economiza/internal/product"
	"economiza/internal/provider"
	"economiza/internal/qr"
	"economiza/internal/receipt"
	"economiza/internal/receipt/parser"
	receiptstore "economiza/internal/receipt/store"
	"economiza/internal/secrets"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/requestcontext"
)

// ProviderClient fetches raw documents from the configured provider.
type ProviderClient interface {
	FetchByKey(ctx context.Context, key string) (map[string]any, error)
	FetchByURL(ctx context.Context, rawURL string) (map[string]any, error)
}

// ReceiptParser normalizes a raw payload into the canonical shape.
type ReceiptParser interface {
	Parse(ctx context.Context, payload map[string]any) (*receipt.CanonicalReceipt, error)
}

// ProductResolver maps a line description to a product identity.
type ProductResolver interface {
	Resolve(ctx context.Context, description, barcode string) (*product.Identity, string, error)
}

// Service runs the ingestion pipeline. One instance serves both the HTTP
// path and the deferred workers; only the deferral decision differs.
type Service struct {
	provider  ProviderClient
	parser    ReceiptParser
	receipts  receiptstore.Store
	resolver  ProductResolver
	queue     queue.Queue
	encryptor secrets.Encryptor
	cfg       config.IngestConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewService(
	providerClient ProviderClient,
	receiptParser ReceiptParser,
	receipts receiptstore.Store,
	resolver ProductResolver,
	q queue.Queue,
	encryptor secrets.Encryptor,
	cfg config.IngestConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		provider:  providerClient,
		parser:    receiptParser,
		receipts:  receipts,
		resolver:  resolver,
		queue:     q,
		encryptor: encryptor,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// Scan ingests one QR text for an owner. Large documents are queued instead
// of processed inline.
func (s *Service) Scan(ctx context.Context, ownerID uuid.UUID, qrText string) Outcome {
	start := time.Now()
	outcome := s.run(ctx, ownerID, qrText, true)
	s.metrics.RecordOutcome(string(outcome.Kind))
	s.metrics.ObserveIngestDuration(time.Since(start))
	return outcome
}

// ProcessTask finishes a deferred ingestion using the payload fetched at
// scan time; the provider is not contacted again. Deferral is off so the
// task cannot bounce back to the queue; idempotency checks make
// redeliveries safe.
func (s *Service) ProcessTask(ctx context.Context, task queue.Task) Outcome {
	outcome := s.runTask(ctx, task)
	s.metrics.RecordOutcome(string(outcome.Kind))
	return outcome
}

func (s *Service) runTask(ctx context.Context, task queue.Task) Outcome {
	if len(task.RawPayload) == 0 {
		// Tasks enqueued without a payload replay the full pipeline.
		return s.run(ctx, task.OwnerID, task.QRText, false)
	}
	if task.AccessKey != "" {
		if existing, ok := s.alreadyIngested(ctx, task.OwnerID, task.AccessKey); ok {
			return conflict(existing)
		}
	}
	var payload map[string]any
	if err := json.Unmarshal(task.RawPayload, &payload); err != nil {
		return failed(FailureInternal, fmt.Sprintf("decode deferred payload: %v", err))
	}
	return s.ingest(ctx, task.OwnerID, task.QRText, payload, false)
}

func (s *Service) run(ctx context.Context, ownerID uuid.UUID, qrText string, allowDefer bool) Outcome {
	extraction, err := qr.Extract(qrText)
	if err != nil {
		return failed(FailureInvalidQR, err.Error())
	}

	// The access key identifies the document; check for a previous ingestion
	// as soon as it is known, before any provider traffic.
	if extraction.AccessKey != "" {
		if existing, ok := s.alreadyIngested(ctx, ownerID, extraction.AccessKey); ok {
			return conflict(existing)
		}
	}

	var payload map[string]any
	if extraction.URL != "" {
		payload, err = s.provider.FetchByURL(ctx, extraction.URL)
	} else {
		payload, err = s.provider.FetchByKey(ctx, extraction.AccessKey)
	}
	if err != nil {
		return providerFailure(err)
	}

	return s.ingest(ctx, ownerID, qrText, payload, allowDefer)
}

// ingest normalizes a fetched payload and carries it to a terminal outcome.
// It is the shared tail of the synchronous and deferred paths.
func (s *Service) ingest(ctx context.Context, ownerID uuid.UUID, qrText string, payload map[string]any, allowDefer bool) Outcome {
	canonical, err := s.parser.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, parser.ErrMalformed) {
			return failed(FailureMalformed, err.Error())
		}
		return failed(FailureInternal, err.Error())
	}

	// The parsed key is authoritative; URLs carry the key only indirectly,
	// so re-check before the expensive resolution work.
	if existing, ok := s.alreadyIngested(ctx, ownerID, canonical.AccessKey); ok {
		return conflict(existing)
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return failed(FailureInternal, fmt.Sprintf("serialize raw payload: %v", err))
	}

	if allowDefer && s.shouldDefer(canonical, serialized) {
		task := queue.Task{
			ID:         uuid.New(),
			OwnerID:    ownerID,
			QRText:     qrText,
			AccessKey:  canonical.AccessKey,
			RawPayload: serialized,
			Deliveries: 0,
			EnqueuedAt: requestcontext.Now(ctx).UTC(),
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return failed(FailureInternal, fmt.Sprintf("enqueue deferred task: %v", err))
		}
		s.logger.InfoContext(ctx, "receipt deferred to worker queue",
			"task_id", task.ID.String(),
			"items", len(canonical.Items),
		)
		return accepted(task.ID)
	}

	for i := range canonical.Items {
		item := &canonical.Items[i]
		identity, strategy, err := s.resolver.Resolve(ctx, item.Description, item.Barcode)
		if err != nil {
			return failed(FailureInternal, fmt.Sprintf("resolve product: %v", err))
		}
		item.ProductID = identity.ID
		s.logger.DebugContext(ctx, "product resolved",
			"strategy", strategy,
			"product_id", identity.ID.String(),
		)
	}

	rec, err := s.buildRecord(ownerID, qrText, serialized, canonical)
	if err != nil {
		return failed(FailureInternal, err.Error())
	}

	id, err := s.receipts.Save(ctx, rec)
	if errors.Is(err, sentinel.ErrConflict) {
		// A concurrent scan won the race; surface its receipt. A conflict
		// without a readable winner is an internal fault, not a duplicate
		// the client could act on.
		if existing, ok := s.alreadyIngested(ctx, ownerID, canonical.AccessKey); ok {
			return conflict(existing)
		}
		return failed(FailureInternal, "duplicate save detected but existing receipt could not be loaded")
	}
	if err != nil {
		return failed(FailureInternal, fmt.Sprintf("save receipt: %v", err))
	}

	s.logger.InfoContext(ctx, "receipt ingested",
		"receipt_id", id.String(),
		"access_key", canonical.AccessKey,
		"items", len(canonical.Items),
	)
	return saved(id)
}

func (s *Service) alreadyIngested(ctx context.Context, ownerID uuid.UUID, accessKey string) (uuid.UUID, bool) {
	existing, err := s.receipts.Exists(ctx, ownerID, accessKey)
	if err == nil {
		return existing, true
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "idempotency check failed", "error", err.Error())
	}
	return uuid.Nil, false
}

// shouldDefer routes oversized documents to the worker queue so the
// synchronous path stays fast.
func (s *Service) shouldDefer(canonical *receipt.CanonicalReceipt, serialized []byte) bool {
	return len(canonical.Items) > s.cfg.DeferredMaxItems ||
		len(serialized) > s.cfg.DeferredMaxBytes
}

// buildRecord encrypts the raw material and assembles the persistence row.
func (s *Service) buildRecord(ownerID uuid.UUID, qrText string, serialized []byte, canonical *receipt.CanonicalReceipt) (*receipt.Receipt, error) {
	encryptedQR, err := s.encryptor.Encrypt([]byte(qrText))
	if err != nil {
		return nil, fmt.Errorf("encrypt qr text: %w", err)
	}
	encryptedRaw, err := s.encryptor.Encrypt(serialized)
	if err != nil {
		return nil, fmt.Errorf("encrypt raw payload: %w", err)
	}
	return &receipt.Receipt{
		OwnerID:             ownerID,
		Canonical:           *canonical,
		EncryptedQRText:     encryptedQR,
		EncryptedRawPayload: encryptedRaw,
	}, nil
}

// providerFailure maps the provider error taxonomy onto outcome failures.
func providerFailure(err error) Outcome {
	switch provider.CategoryOf(err) {
	case provider.CategorySecurity:
		return failed(FailureSecurity, err.Error())
	case provider.CategoryRateLimited:
		return failed(FailureRateLimited, err.Error())
	default:
		return failed(FailureProvider, err.Error())
	}
}
