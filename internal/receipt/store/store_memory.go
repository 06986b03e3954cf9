package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"economiza/internal/receipt"
	"economiza/pkg/platform/sentinel"
	"economiza/pkg/requestcontext"
)

type ownerKey struct {
	ownerID   uuid.UUID
	accessKey string
}

// MemoryStore keeps receipts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	byKey    map[ownerKey]uuid.UUID
	receipts map[uuid.UUID]*receipt.Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:    make(map[ownerKey]uuid.UUID),
		receipts: make(map[uuid.UUID]*receipt.Receipt),
	}
}

func (s *MemoryStore) Exists(_ context.Context, ownerID uuid.UUID, accessKey string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[ownerKey{ownerID: ownerID, accessKey: accessKey}]
	if !ok {
		return uuid.Nil, sentinel.ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *receipt.Receipt) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerKey{ownerID: rec.OwnerID, accessKey: rec.Canonical.AccessKey}
	if _, ok := s.byKey[key]; ok {
		return uuid.Nil, sentinel.ErrConflict
	}

	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = requestcontext.Now(ctx).UTC()
	}
	stored.Canonical.Items = append([]receipt.CanonicalItem(nil), rec.Canonical.Items...)

	s.byKey[key] = stored.ID
	s.receipts[stored.ID] = &stored
	return stored.ID, nil
}

func (s *MemoryStore) GetByID(_ context.Context, ownerID, receiptID uuid.UUID) (*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.receipts[receiptID]
	if !ok || rec.OwnerID != ownerID {
		return nil, sentinel.ErrNotFound
	}
	copied := *rec
	copied.Canonical.Items = append([]receipt.CanonicalItem(nil), rec.Canonical.Items...)
	return &copied, nil
}

var _ Store = (*MemoryStore)(nil)
