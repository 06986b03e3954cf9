// Package receipt defines the canonical receipt model shared by the parser,
// the stores and the ingestion pipeline.
package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CanonicalReceipt is the single normalized shape every provider payload is
// reduced to. Monetary amounts carry two decimal places, quantities three.
type CanonicalReceipt struct {
	AccessKey  string          `json:"access_key"`
	EmittedAt  time.Time       `json:"emitted_at"`
	StoreName  string          `json:"store_name"`
	StoreTaxID string          `json:"store_tax_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	TotalValue decimal.Decimal `json:"total_value"`
	Items      []CanonicalItem `json:"items"`

	// Warnings records non-fatal normalization notes, such as a missing
	// emission date being defaulted.
	Warnings []string `json:"warnings,omitempty"`
}

// CanonicalItem is one purchased line on a receipt.
type CanonicalItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxValue    decimal.Decimal `json:"tax_value"`
	Barcode     string          `json:"barcode,omitempty"`

	// ProductID is filled by the resolver before persistence.
	ProductID uuid.UUID `json:"product_id,omitempty"`
}

// Receipt is the persistence record for an ingested receipt.
type Receipt struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Canonical CanonicalReceipt

	// EncryptedQRText and EncryptedRawPayload hold ciphertext only. Plain
	// raw material never reaches a store.
	EncryptedQRText     string
	EncryptedRawPayload string

	CreatedAt time.Time
}
