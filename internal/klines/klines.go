package klines

import (
	"context"
	"fmt"
	"log/slog"

	"twap_go/internal/domain"
)

// Kline is one normalized candlestick:
// [open_time(ms), open, high, low, close, volume].
type Kline struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Source fetches candles from one exchange REST API. Symbols arrive in
// query form.
type Source interface {
	Name() string
	ValidInterval(interval string) bool
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
}

// SymbolResolver translates caller symbols to the exchange's encodings;
// satisfied by the symbol registry.
type SymbolResolver interface {
	QueryForm(ctx context.Context, exchange, symbol string) (string, error)
	StreamForm(ctx context.Context, exchange, symbol string) (string, error)
}

// FeedWarmer lazily starts the live feed for a pair; satisfied by the
// feed manager. Kline requests warm the feed so a following order
// submission finds market data already flowing.
type FeedWarmer interface {
	Ensure(ctx context.Context, exchange, symbol string) error
}

// Service is the stateless candle pass-through. It validates the request,
// warms the pair's live feed, and fetches from the exchange.
type Service struct {
	sources  map[string]Source
	resolver SymbolResolver
	feeds    FeedWarmer
}

// NewService builds the service over per-exchange sources. feeds may be
// nil, in which case requests do not warm feeds.
func NewService(resolver SymbolResolver, feeds FeedWarmer, sources ...Source) *Service {
	s := &Service{
		sources:  make(map[string]Source, len(sources)),
		resolver: resolver,
		feeds:    feeds,
	}
	for _, src := range sources {
		s.sources[src.Name()] = src
	}
	return s
}

// Get fetches normalized candles. The symbol may be in either form; it is
// resolved to query form before hitting the exchange.
func (s *Service) Get(ctx context.Context, exchange, symbol, interval string, limit int) ([]Kline, error) {
	src, ok := s.sources[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
	}
	if limit <= 0 || limit > 1000 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 1000, got %d", domain.ErrInvalidRequest, limit)
	}
	if !src.ValidInterval(interval) {
		return nil, fmt.Errorf("%w: interval %q not supported by %s", domain.ErrInvalidRequest, interval, exchange)
	}

	querySymbol, err := s.resolver.QueryForm(ctx, exchange, symbol)
	if err != nil {
		return nil, err
	}

	if s.feeds != nil {
		// A candle query warms the pair's live feed so a following order
		// submission finds prices already flowing. Warm-up failure does
		// not fail the query.
		if streamSymbol, err := s.resolver.StreamForm(ctx, exchange, symbol); err == nil {
			if err := s.feeds.Ensure(ctx, exchange, streamSymbol); err != nil {
				slog.Warn("feed warm-up failed",
					slog.String("exchange", exchange),
					slog.String("symbol", streamSymbol),
					slog.Any("error", err))
			}
		}
	}

	return src.Klines(ctx, querySymbol, interval, limit)
}
