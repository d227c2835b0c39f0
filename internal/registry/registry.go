package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"twap_go/internal/domain"
)

// Pair is one tradable pair in both textual encodings an exchange uses:
// the stream form subscribes to live feeds, the query form addresses the
// REST API. Binance uses one encoding for both; Kraken does not.
type Pair struct {
	Stream string
	Query  string
}

// PairSource fetches the tradable pair list for one exchange.
type PairSource interface {
	Name() string
	FetchPairs(ctx context.Context) ([]Pair, error)
}

type exchangeCache struct {
	pairs    []Pair
	byStream map[string]int
	byQuery  map[string]int
}

// Registry resolves and caches tradable symbols per exchange. The cache
// fills on first use and refreshes only on explicit request; when an
// upstream fetch fails, the last good cache keeps serving.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]PairSource
	cache   map[string]*exchangeCache
}

// New creates a registry over the given exchange sources.
func New(sources ...PairSource) *Registry {
	r := &Registry{
		sources: make(map[string]PairSource, len(sources)),
		cache:   make(map[string]*exchangeCache),
	}
	for _, s := range sources {
		r.sources[s.Name()] = s
	}
	return r
}

// Exchanges lists the supported exchange names, sorted.
func (r *Registry) Exchanges() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListSymbols returns the stream-form and query-form symbol lists for an
// exchange, positionally aligned. On fetch failure the last good cache is
// returned; with no cache the error wraps ErrUpstreamUnavailable.
func (r *Registry) ListSymbols(ctx context.Context, exchange string) (stream, query []string, err error) {
	c, err := r.lookup(ctx, exchange)
	if err != nil {
		return nil, nil, err
	}

	stream = make([]string, len(c.pairs))
	query = make([]string, len(c.pairs))
	for i, p := range c.pairs {
		stream[i] = p.Stream
		query[i] = p.Query
	}
	return stream, query, nil
}

// Refresh discards the cache for an exchange and refetches.
func (r *Registry) Refresh(ctx context.Context, exchange string) error {
	src, ok := r.sources[exchange]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
	}

	pairs, err := src.FetchPairs(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s pairs: %w", exchange, err)
	}

	r.mu.Lock()
	r.cache[exchange] = indexPairs(pairs)
	r.mu.Unlock()

	slog.Info("symbol registry refreshed",
		slog.String("exchange", exchange),
		slog.Int("pairs", len(pairs)))
	return nil
}

// IsKnown reports whether the symbol, in either form, trades on the
// exchange.
func (r *Registry) IsKnown(ctx context.Context, exchange, symbol string) (bool, error) {
	c, err := r.lookup(ctx, exchange)
	if err != nil {
		return false, err
	}
	if _, ok := c.byStream[symbol]; ok {
		return true, nil
	}
	_, ok := c.byQuery[symbol]
	return ok, nil
}

// StreamForm translates a symbol given in either form to the encoding
// required to open a live feed.
func (r *Registry) StreamForm(ctx context.Context, exchange, symbol string) (string, error) {
	c, err := r.lookup(ctx, exchange)
	if err != nil {
		return "", err
	}
	if i, ok := c.byStream[symbol]; ok {
		return c.pairs[i].Stream, nil
	}
	if i, ok := c.byQuery[symbol]; ok {
		return c.pairs[i].Stream, nil
	}
	return "", fmt.Errorf("%w: symbol %q not listed on %s", domain.ErrInvalidOrder, symbol, exchange)
}

// QueryForm translates a symbol given in either form to the encoding the
// exchange's REST API expects.
func (r *Registry) QueryForm(ctx context.Context, exchange, symbol string) (string, error) {
	c, err := r.lookup(ctx, exchange)
	if err != nil {
		return "", err
	}
	if i, ok := c.byQuery[symbol]; ok {
		return c.pairs[i].Query, nil
	}
	if i, ok := c.byStream[symbol]; ok {
		return c.pairs[i].Query, nil
	}
	return "", fmt.Errorf("%w: symbol %q not listed on %s", domain.ErrInvalidRequest, symbol, exchange)
}

func (r *Registry) lookup(ctx context.Context, exchange string) (*exchangeCache, error) {
	src, ok := r.sources[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
	}

	r.mu.RLock()
	c := r.cache[exchange]
	r.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	pairs, err := src.FetchPairs(ctx)
	if err != nil {
		// No cache to fall back to.
		return nil, fmt.Errorf("%w: fetching %s pairs: %v", domain.ErrUpstreamUnavailable, exchange, err)
	}

	c = indexPairs(pairs)
	r.mu.Lock()
	// Another caller may have filled the cache meanwhile; last write wins,
	// both hold the same upstream answer.
	r.cache[exchange] = c
	r.mu.Unlock()

	slog.Info("symbol registry loaded",
		slog.String("exchange", exchange),
		slog.Int("pairs", len(pairs)))
	return c, nil
}

func indexPairs(pairs []Pair) *exchangeCache {
	c := &exchangeCache{
		pairs:    pairs,
		byStream: make(map[string]int, len(pairs)),
		byQuery:  make(map[string]int, len(pairs)),
	}
	for i, p := range pairs {
		c.byStream[p.Stream] = i
		c.byQuery[p.Query] = i
	}
	return c
}
