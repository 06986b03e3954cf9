// Package store persists the product catalog.
package store

import (
	"context"

	"github.com/google/uuid"

	"economiza/internal/product"
)

// Catalog is the persistence contract for product identities.
type Catalog interface {
	// FindByBarcode returns the product carrying this barcode, or
	// sentinel.ErrNotFound.
	FindByBarcode(ctx context.Context, barcode string) (*product.Identity, error)

	// All returns every product in creation order. The resolver relies on
	// that order to break fuzzy-score ties deterministically.
	All(ctx context.Context) ([]*product.Identity, error)

	// GetOrCreate returns the product with this normalized name, creating
	// it atomically when absent. Concurrent callers racing on the same
	// normalized name all receive the same identity.
	GetOrCreate(ctx context.Context, name, normalizedName, barcode string) (*product.Identity, error)

	// SetBarcode backfills a barcode onto a product that has none. Products
	// that already carry a barcode are left untouched.
	SetBarcode(ctx context.Context, productID uuid.UUID, barcode string) error
}
