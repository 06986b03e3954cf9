// Package store persists ingested receipts. Two implementations exist: an
// in-memory store for tests and local development, and a PostgreSQL store
// for production.
package store

import (
	"context"

	"github.com/google/uuid"

	"economiza/internal/receipt"
)

// Store is the persistence contract for receipts. Duplicate detection is
// scoped to the owner: the same access key may be saved by different owners.
type Store interface {
	// Exists returns the receipt ID already saved for this owner and access
	// key, or sentinel.ErrNotFound.
	Exists(ctx context.Context, ownerID uuid.UUID, accessKey string) (uuid.UUID, error)

	// Save persists the receipt and its items atomically. It returns
	// sentinel.ErrConflict when the owner already saved this access key.
	Save(ctx context.Context, rec *receipt.Receipt) (uuid.UUID, error)

	// GetByID returns an owner's receipt, or sentinel.ErrNotFound. Receipts
	// are never visible across owners.
	GetByID(ctx context.Context, ownerID, receiptID uuid.UUID) (*receipt.Receipt, error)
}
