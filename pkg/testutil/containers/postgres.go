//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema mirrors the production tables. Integration tests create it once per
// container and truncate between tests.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	access_key TEXT NOT NULL,
	emitted_at TIMESTAMPTZ NOT NULL,
	store_name TEXT NOT NULL DEFAULT '',
	store_tax_id TEXT NOT NULL DEFAULT '',
	subtotal NUMERIC(12,2) NOT NULL,
	total_tax NUMERIC(12,2) NOT NULL,
	total_value NUMERIC(12,2) NOT NULL,
	encrypted_qr_text TEXT NOT NULL DEFAULT '',
	encrypted_raw_payload TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, access_key)
);

CREATE TABLE IF NOT EXISTS receipt_items (
	id UUID PRIMARY KEY,
	receipt_id UUID NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
	line_no INT NOT NULL,
	product_id UUID,
	description TEXT NOT NULL,
	quantity NUMERIC(12,3) NOT NULL,
	unit_price NUMERIC(12,2) NOT NULL,
	total_price NUMERIC(12,2) NOT NULL,
	tax_value NUMERIC(12,2) NOT NULL,
	barcode TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS products (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	barcode TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS products_barcode_idx ON products (barcode) WHERE barcode <> '';
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// application schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a PostgreSQL container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("economiza_test"),
		tcpostgres.WithUsername("economiza"),
		tcpostgres.WithPassword("economiza"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// The singleton Manager shares this container across suites; Ryuk
	// terminates it when the test process exits.
	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
	}
}

// TruncateTables empties the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
