package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"economiza/internal/ingest"
	"economiza/internal/platform/metrics"
	"economiza/internal/platform/middleware"
	"economiza/internal/receipt"
	"economiza/internal/transport/http/shared"
	dErrors "economiza/pkg/domain-errors"
	"economiza/pkg/platform/sentinel"
)

// Service defines the ingestion operations the transport depends on.
type Service interface {
	Scan(ctx context.Context, ownerID uuid.UUID, qrText string) ingest.Outcome
}

// ReceiptReader reads persisted receipts for the authenticated owner.
type ReceiptReader interface {
	GetByID(ctx context.Context, ownerID, receiptID uuid.UUID) (*receipt.Receipt, error)
}

// Handler serves the receipt endpoints.
type Handler struct {
	logger       *slog.Logger
	ingest       Service
	receipts     ReceiptReader
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(ingestService Service, receipts ReceiptReader, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		ingest:       ingestService,
		receipts:     receipts,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the authenticated receipt routes.
func (h *Handler) Register(r chi.Router) {
	receiptsRouter := chi.NewRouter()
	receiptsRouter.Use(middleware.Recovery(h.logger))
	receiptsRouter.Use(middleware.RequestID)
	receiptsRouter.Use(middleware.Logger(h.logger))
	receiptsRouter.Use(middleware.Timeout(60 * time.Second))
	receiptsRouter.Use(middleware.ContentTypeJSON)
	receiptsRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	receiptsRouter.Post("/receipts/scan", h.handleScan)
	receiptsRouter.Get("/receipts/{id}", h.handleGetReceipt)

	r.Mount("/", receiptsRouter)
}

type scanRequest struct {
	QRText string `json:"qr_text"`
}

type scanResponse struct {
	Status    string `json:"status"`
	ReceiptID string `json:"receipt_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// handleScan runs the ingestion pipeline for the posted QR text and maps the
// outcome onto a status code: 200 saved, 202 queued, 409 already ingested.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)
	if ownerID == uuid.Nil {
		h.logger.ErrorContext(ctx, "owner missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.QRText == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "qr_text is required"))
		return
	}

	outcome := h.ingest.Scan(ctx, ownerID, req.QRText)
	switch outcome.Kind {
	case ingest.OutcomeSaved:
		shared.WriteJSON(w, http.StatusOK, scanResponse{
			Status:    "saved",
			ReceiptID: outcome.ReceiptID.String(),
		})
	case ingest.OutcomeAccepted:
		shared.WriteJSON(w, http.StatusAccepted, scanResponse{
			Status: "processing",
			TaskID: outcome.TaskID.String(),
		})
	case ingest.OutcomeConflict:
		shared.WriteJSON(w, http.StatusConflict, scanResponse{
			Status:    "duplicate",
			ReceiptID: outcome.ReceiptID.String(),
		})
	case ingest.OutcomeFailed:
		h.writeFailure(w, r, outcome)
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "unknown outcome"))
	}
}

// writeFailure maps failure kinds onto status codes. Security rejections log
// at warning level with the owner attached; a scanned QR pointing at a
// non-fiscal host is an attack signal, not user error.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, outcome ingest.Outcome) {
	ctx := r.Context()
	switch outcome.Failure {
	case ingest.FailureInvalidQR:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "qr text carries no consultation url or access key"))
	case ingest.FailureMalformed:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "receipt payload could not be normalized"))
	case ingest.FailureSecurity:
		h.logger.WarnContext(ctx, "scan blocked by url allow-list",
			"owner_id", middleware.GetOwnerID(ctx).String(),
			"request_id", middleware.GetRequestID(ctx),
			"detail", outcome.Message,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "url not allowed"))
	case ingest.FailureRateLimited:
		shared.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "provider rate limit reached, try again later"))
	default:
		h.logger.ErrorContext(ctx, "scan failed",
			"failure", string(outcome.Failure),
			"detail", outcome.Message,
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "receipt ingestion failed"))
	}
}

type receiptResponse struct {
	ID         string              `json:"id"`
	AccessKey  string              `json:"access_key"`
	EmittedAt  time.Time           `json:"emitted_at"`
	StoreName  string              `json:"store_name"`
	StoreTaxID string              `json:"store_tax_id"`
	Subtotal   string              `json:"subtotal"`
	TotalTax   string              `json:"total_tax"`
	TotalValue string              `json:"total_value"`
	Items      []receiptItemView   `json:"items"`
	Warnings   []string            `json:"warnings,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

type receiptItemView struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
	TaxValue    string `json:"tax_value"`
	Barcode     string `json:"barcode,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	receiptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receipt id"))
		return
	}

	rec, err := h.receipts.GetByID(ctx, ownerID, receiptID)
	if errors.Is(err, sentinel.ErrNotFound) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "receipt not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "get receipt failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to load receipt"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, toReceiptResponse(rec))
}

func toReceiptResponse(rec *receipt.Receipt) receiptResponse {
	items := make([]receiptItemView, 0, len(rec.Canonical.Items))
	for _, item := range rec.Canonical.Items {
		view := receiptItemView{
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.String(),
			TotalPrice:  item.TotalPrice.String(),
			TaxValue:    item.TaxValue.String(),
			Barcode:     item.Barcode,
		}
		if item.ProductID != uuid.Nil {
			view.ProductID = item.ProductID.String()
		}
		items = append(items, view)
	}
	return receiptResponse{
		ID:         rec.ID.String(),
		AccessKey:  rec.Canonical.AccessKey,
		EmittedAt:  rec.Canonical.EmittedAt,
		StoreName:  rec.Canonical.StoreName,
		StoreTaxID: rec.Canonical.StoreTaxID,
		Subtotal:   rec.Canonical.Subtotal.StringFixed(2),
		TotalTax:   rec.Canonical.TotalTax.StringFixed(2),
		TotalValue: rec.Canonical.TotalValue.StringFixed(2),
		Items:      items,
		Warnings:   rec.Canonical.Warnings,
		CreatedAt:  rec.CreatedAt,
	}
}
