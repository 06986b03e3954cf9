package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"economiza/internal/product"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/requestcontext"
)

// MemoryCatalog keeps the catalog in process memory, preserving insertion
// order for deterministic iteration.
type MemoryCatalog struct {
	mu      sync.RWMutex
	byName  map[string]*product.Identity
	ordered []*product.Identity
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{byName: make(map[string]*product.Identity)}
}

func (c *MemoryCatalog) FindByBarcode(_ context.Context, barcode string) (*product.Identity, error) {
	if barcode == "" {
		return nil, sentinel.ErrNotFound
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.ordered {
		if p.Barcode == barcode {
			copied := *p
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (c *MemoryCatalog) All(_ context.Context) ([]*product.Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*product.Identity, 0, len(c.ordered))
	for _, p := range c.ordered {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (c *MemoryCatalog) GetOrCreate(ctx context.Context, name, normalizedName, barcode string) (*product.Identity, error) {
	if normalizedName == "" {
		return nil, sentinel.ErrInvalidState
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[normalizedName]; ok {
		copied := *existing
		return &copied, nil
	}

	p := &product.Identity{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: normalizedName,
		Barcode:        barcode,
		CreatedAt:      requestcontext.Now(ctx).UTC(),
	}
	c.byName[normalizedName] = p
	c.ordered = append(c.ordered, p)
	copied := *p
	return &copied, nil
}

func (c *MemoryCatalog) SetBarcode(_ context.Context, productID uuid.UUID, barcode string) error {
	if barcode == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.ordered {
		if p.ID == productID {
			if p.Barcode == "" {
				p.Barcode = barcode
			}
			return nil
		}
	}
	return sentinel.ErrNotFound
}

var _ Catalog = (*MemoryCatalog)(nil)
