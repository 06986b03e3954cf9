package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"economiza/internal/product"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/requestcontext"
)

// PostgresCatalog persists the catalog in PostgreSQL. The unique index on
// normalized_name makes GetOrCreate race-free without advisory locks.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) FindByBarcode(ctx context.Context, barcode string) (*product.Identity, error) {
	if barcode == "" {
		return nil, sentinel.ErrNotFound
	}
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, normalized_name, barcode, created_at
		FROM products
		WHERE barcode = $1
		ORDER BY created_at, id
		LIMIT 1
	`, barcode)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product by barcode: %w", err)
	}
	return p, nil
}

func (c *PostgresCatalog) All(ctx context.Context) ([]*product.Identity, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, normalized_name, barcode, created_at
		FROM products
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*product.Identity
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

// GetOrCreate upserts on normalized_name. The DO UPDATE arm is a no-op
// assignment so RETURNING yields the surviving row for both winners and
// losers of a concurrent insert race.
func (c *PostgresCatalog) GetOrCreate(ctx context.Context, name, normalizedName, barcode string) (*product.Identity, error) {
	if normalizedName == "" {
		return nil, sentinel.ErrInvalidState
	}
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, normalized_name, barcode, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (normalized_name) DO UPDATE SET
			normalized_name = EXCLUDED.normalized_name
		RETURNING id, name, normalized_name, barcode, created_at
	`, uuid.New(), name, normalizedName, barcode, requestcontext.Now(ctx).UTC())
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("get or create product: %w", err)
	}
	return p, nil
}

func (c *PostgresCatalog) SetBarcode(ctx context.Context, productID uuid.UUID, barcode string) error {
	if barcode == "" {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		UPDATE products SET barcode = $2
		WHERE id = $1 AND barcode = ''
	`, productID, barcode)
	if err != nil {
		return fmt.Errorf("set product barcode: %w", err)
	}
	return nil
}

type productRow interface {
	Scan(dest ...any) error
}

func scanProduct(row productRow) (*product.Identity, error) {
	var p product.Identity
	if err := row.Scan(&p.ID, &p.Name, &p.NormalizedName, &p.Barcode, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ Catalog = (*PostgresCatalog)(nil)
