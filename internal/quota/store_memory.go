package quota

import (
	"context"
	"sync"

	"carvalue-api/internal/model"
)

// MemoryStore keeps quota records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.QuotaRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.QuotaRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (model.QuotaRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	return rec, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec model.QuotaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identity] = rec
	return nil
}

// Len returns the number of identities with a record.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
