// Package modelstore defines how model state is persisted between requests.
// Models are saved as opaque blobs under a fixed identifier.
package modelstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no blob exists for the identifier.
var ErrNotFound = errors.New("model not found")

// Identifiers of the persisted models.
const (
	PriceModelID = "price_predictor"
	ClustererID  = "kmeans_model"
	ScalerID     = "scaler"
)

// Store loads and saves model blobs.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, blob []byte) error
}

// MemoryStore keeps blobs in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}, saves: map[string]int{}}
}

func (s *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *MemoryStore) Save(_ context.Context, id string, blob []byte) error {
	s.mu.Lock()
	s.blobs[id] = append([]byte(nil), blob...)
	s.saves[id]++
	s.mu.Unlock()
	return nil
}

// Saves returns how many times the identifier was written.
func (s *MemoryStore) Saves(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[id]
}
