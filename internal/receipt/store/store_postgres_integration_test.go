//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"economiza/internal/receipt"
	"economiza/internal/receipt/store"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/testutil/containers"
)

const testAccessKey = "35200112345678901234567890123456789012345678"

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "receipt_items", "receipts")
	s.Require().NoError(err)
}

func testReceipt(owner uuid.UUID, accessKey string) *receipt.Receipt {
	return &receipt.Receipt{
		OwnerID: owner,
		Canonical: receipt.CanonicalReceipt{
			AccessKey:  accessKey,
			EmittedAt:  time.Date(2024, 4, 12, 15, 33, 0, 0, time.UTC),
			StoreName:  "SUPERMERCADO EXEMPLO",
			StoreTaxID: "12345678000100",
			Subtotal:   decimal.RequireFromString("119.00"),
			TotalTax:   decimal.RequireFromString("6.30"),
			TotalValue: decimal.RequireFromString("125.30"),
			Items: []receipt.CanonicalItem{
				{
					Description: "ARROZ TIPO 1 5KG",
					Quantity:    decimal.NewFromInt(1),
					UnitPrice:   decimal.RequireFromString("25.50"),
					TotalPrice:  decimal.RequireFromString("25.50"),
					TaxValue:    decimal.RequireFromString("1.20"),
					ProductID:   uuid.New(),
				},
				{
					Description: "FEIJAO PRETO 1KG",
					Quantity:    decimal.NewFromInt(2),
					UnitPrice:   decimal.RequireFromString("8.50"),
					TotalPrice:  decimal.RequireFromString("17.00"),
					TaxValue:    decimal.RequireFromString("0.85"),
					Barcode:     "7891000100103",
				},
			},
		},
		EncryptedQRText:     "ciphertext-qr",
		EncryptedRawPayload: "ciphertext-raw",
	}
}

func (s *PostgresStoreSuite) TestSaveAndGetRoundTrip() {
	ctx := context.Background()
	owner := uuid.New()

	id, err := s.store.Save(ctx, testReceipt(owner, testAccessKey))
	s.Require().NoError(err)

	got, err := s.store.GetByID(ctx, owner, id)
	s.Require().NoError(err)
	s.Equal(testAccessKey, got.Canonical.AccessKey)
	s.Equal("SUPERMERCADO EXEMPLO", got.Canonical.StoreName)
	s.True(got.Canonical.TotalValue.Equal(decimal.RequireFromString("125.30")))

	s.Require().Len(got.Canonical.Items, 2)
	s.Equal("ARROZ TIPO 1 5KG", got.Canonical.Items[0].Description)
	s.NotEqual(uuid.Nil, got.Canonical.Items[0].ProductID)
	s.Equal("7891000100103", got.Canonical.Items[1].Barcode)
	s.True(got.Canonical.Items[1].Quantity.Equal(decimal.NewFromInt(2)))
}

func (s *PostgresStoreSuite) TestDuplicateSaveConflicts() {
	ctx := context.Background()
	owner := uuid.New()

	first, err := s.store.Save(ctx, testReceipt(owner, testAccessKey))
	s.Require().NoError(err)

	_, err = s.store.Save(ctx, testReceipt(owner, testAccessKey))
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	existing, err := s.store.Exists(ctx, owner, testAccessKey)
	s.Require().NoError(err)
	s.Equal(first, existing)
}

func (s *PostgresStoreSuite) TestConcurrentSavesResolveToOneRow() {
	ctx := context.Background()
	owner := uuid.New()
	const goroutines = 20

	var wg sync.WaitGroup
	var saved atomic.Int32
	var conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Save(ctx, testReceipt(owner, testAccessKey))
			switch {
			case err == nil:
				saved.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), saved.Load(), "exactly one save should win")
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestOwnersAreIsolated() {
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	aliceID, err := s.store.Save(ctx, testReceipt(alice, testAccessKey))
	s.Require().NoError(err)

	_, err = s.store.Save(ctx, testReceipt(bob, testAccessKey))
	s.Require().NoError(err)

	_, err = s.store.GetByID(ctx, bob, aliceID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
