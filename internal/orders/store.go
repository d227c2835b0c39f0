package orders

import (
	"fmt"
	"sync"

	"twap_go/internal/domain"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Exchange string
	Symbol   string
	Side     domain.Side
	Status   domain.Status
}

type entry struct {
	mu    sync.Mutex
	order *domain.Order
}

// Store keeps every order for the process lifetime, keyed by client
// token. Each order carries its own lock so a slow update on one order
// never blocks reads of another.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	tokens  []string
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create registers a new order. The token must not have been used
// before: tokens are client-chosen idempotency keys.
func (s *Store) Create(order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[order.TokenID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateToken, order.TokenID)
	}
	s.entries[order.TokenID] = &entry{order: order}
	s.tokens = append(s.tokens, order.TokenID)
	return nil
}

// Get returns a deep copy of the order, so callers can marshal or
// inspect it without racing the engine's updates.
func (s *Store) Get(token string) (*domain.Order, error) {
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, token)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	clone := e.order.Clone()
	return &clone, nil
}

// Update applies fn to the order under its lock. fn sees the live
// order and may mutate it in place.
func (s *Store) Update(token string, fn func(*domain.Order)) error {
	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, token)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.order)
	return nil
}

// List returns copies of matching orders in insertion order.
func (s *Store) List(filter ListFilter) []*domain.Order {
	s.mu.RLock()
	tokens := make([]string, len(s.tokens))
	copy(tokens, s.tokens)
	s.mu.RUnlock()

	out := make([]*domain.Order, 0, len(tokens))
	for _, token := range tokens {
		s.mu.RLock()
		e, ok := s.entries[token]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		o := e.order
		match := (filter.Exchange == "" || o.Exchange == filter.Exchange) &&
			(filter.Symbol == "" || o.Symbol == filter.Symbol) &&
			(filter.Side == "" || o.Side == filter.Side) &&
			(filter.Status == "" || o.Status == filter.Status)
		var clone *domain.Order
		if match {
			c := o.Clone()
			clone = &c
		}
		e.mu.Unlock()

		if clone != nil {
			out = append(out, clone)
		}
	}
	return out
}
