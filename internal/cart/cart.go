// Package cart stores the buyer's live cart.
//
// The checkout reads the live cart once, when the wizard opens, and
// clears it once, after the order is persisted. In between the wizard
// works on its own snapshot.
package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"coffee-checkout/internal/model"
)

// ErrCartNotFound is returned when a user has no stored cart.
var ErrCartNotFound = errors.New("cart not found")

// Store is the live cart storage.
type Store interface {
	Load(ctx context.Context, userID string) (model.CartSnapshot, error)
	Save(ctx context.Context, userID string, lines []model.CartLine) error
	Clear(ctx context.Context, userID string) error
}

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]model.CartLine
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory cart store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]model.CartLine), now: time.Now}
}

// Load returns a copy of the user's cart.
func (s *MemoryStore) Load(_ context.Context, userID string) (model.CartSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines, ok := s.carts[userID]
	if !ok {
		return model.CartSnapshot{}, ErrCartNotFound
	}
	out := make([]model.CartLine, len(lines))
	copy(out, lines)
	return model.CartSnapshot{Lines: out, CapturedAt: s.now()}, nil
}

// Save replaces the user's cart.
func (s *MemoryStore) Save(_ context.Context, userID string, lines []model.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]model.CartLine, len(lines))
	copy(stored, lines)
	s.carts[userID] = stored
	return nil
}

// Clear empties the user's cart. Clearing an absent cart is not an error.
func (s *MemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}
