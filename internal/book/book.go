package book

import (
	"sync"

	"twap_go/internal/domain"
)

// State is the shared best-bid/ask map consulted by the TWAP engine and
// the broadcast hub. Each symbol is written by exactly one feed worker,
// so contention is read/write on single entries; a single RWMutex keeps
// every {bid, ask} pair consistent without half-written reads.
type State struct {
	mu      sync.RWMutex
	entries map[string]domain.OrderBookEntry
}

// New creates an empty order-book state.
func New() *State {
	return &State{entries: make(map[string]domain.OrderBookEntry)}
}

// Init registers a symbol with a zero entry, marking it known but
// without data. Feeds overwrite it on their first ticker.
func (s *State) Init(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[symbol]; !ok {
		s.entries[symbol] = domain.OrderBookEntry{}
	}
}

// Set atomically replaces the entry for a symbol.
func (s *State) Set(symbol string, bid, ask float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[symbol] = domain.OrderBookEntry{Bid: bid, Ask: ask}
}

// Get returns the entry for a symbol and whether the symbol is tracked.
// A returned zero entry means the feed has not delivered data yet.
func (s *State) Get(symbol string) (domain.OrderBookEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	return e, ok
}

// Snapshot copies the full state for broadcasting.
func (s *State) Snapshot() map[string]domain.OrderBookEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.OrderBookEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
