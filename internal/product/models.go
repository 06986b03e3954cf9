// Package product owns the product catalog: identities, name normalization
// and the resolution pipeline that maps receipt line descriptions to stable
// product IDs.
package product

import (
	"time"

	"github.com/google/uuid"
)

// Identity is a catalog entry. NormalizedName is the dedup key: two
// descriptions that normalize identically are the same product.
type Identity struct {
	ID             uuid.UUID
	Name           string
	NormalizedName string
	Barcode        string
	CreatedAt      time.Time
}
