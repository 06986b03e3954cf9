package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"economiza/internal/receipt"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/requestcontext"
)

// PostgresStore persists receipts in PostgreSQL. The store is pure I/O;
// idempotency decisions and encryption happen in the service layer, which
// hands over ciphertext only.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Exists(ctx context.Context, ownerID uuid.UUID, accessKey string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM receipts WHERE owner_id = $1 AND access_key = $2`,
		ownerID, accessKey,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, sentinel.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("check receipt exists: %w", err)
	}
	return id, nil
}

// Save writes the receipt and all items in one transaction. The unique index
// on (owner_id, access_key) makes concurrent saves of the same document
// resolve to exactly one row; losers get sentinel.ErrConflict.
func (s *PostgresStore) Save(ctx context.Context, rec *receipt.Receipt) (uuid.UUID, error) {
	if rec == nil {
		return uuid.Nil, fmt.Errorf("receipt is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin save receipt: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = requestcontext.Now(ctx).UTC()
	}

	var savedID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO receipts (
			id, owner_id, access_key, emitted_at, store_name, store_tax_id,
			subtotal, total_tax, total_value,
			encrypted_qr_text, encrypted_raw_payload, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (owner_id, access_key) DO NOTHING
		RETURNING id
	`,
		id, rec.OwnerID, rec.Canonical.AccessKey, rec.Canonical.EmittedAt,
		rec.Canonical.StoreName, rec.Canonical.StoreTaxID,
		rec.Canonical.Subtotal, rec.Canonical.TotalTax, rec.Canonical.TotalValue,
		rec.EncryptedQRText, rec.EncryptedRawPayload, createdAt,
	).Scan(&savedID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, sentinel.ErrConflict
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert receipt: %w", err)
	}

	for i, item := range rec.Canonical.Items {
		var productID any
		if item.ProductID != uuid.Nil {
			productID = item.ProductID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO receipt_items (
				id, receipt_id, line_no, product_id, description,
				quantity, unit_price, total_price, tax_value, barcode
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			uuid.New(), savedID, i+1, productID, item.Description,
			item.Quantity, item.UnitPrice, item.TotalPrice, item.TaxValue, item.Barcode,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert receipt item %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit save receipt: %w", err)
	}
	return savedID, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, ownerID, receiptID uuid.UUID) (*receipt.Receipt, error) {
	rec := &receipt.Receipt{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, access_key, emitted_at, store_name, store_tax_id,
		       subtotal, total_tax, total_value, created_at
		FROM receipts
		WHERE id = $1 AND owner_id = $2
	`, receiptID, ownerID).Scan(
		&rec.ID, &rec.OwnerID, &rec.Canonical.AccessKey, &rec.Canonical.EmittedAt,
		&rec.Canonical.StoreName, &rec.Canonical.StoreTaxID,
		&rec.Canonical.Subtotal, &rec.Canonical.TotalTax, &rec.Canonical.TotalValue,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, description, quantity, unit_price, total_price, tax_value, barcode
		FROM receipt_items
		WHERE receipt_id = $1
		ORDER BY line_no
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("get receipt items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item receipt.CanonicalItem
		var productID uuid.NullUUID
		if err := rows.Scan(&productID, &item.Description, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.TaxValue, &item.Barcode); err != nil {
			return nil, fmt.Errorf("scan receipt item: %w", err)
		}
		if productID.Valid {
			item.ProductID = productID.UUID
		}
		rec.Canonical.Items = append(rec.Canonical.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipt items: %w", err)
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
