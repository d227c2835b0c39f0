package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"twap_go/internal/book"
	"twap_go/internal/domain"
	"twap_go/internal/infra"
	"twap_go/internal/infra/binance"
	"twap_go/internal/infra/kraken"
)

// Endpoints carries the websocket roots per exchange.
type Endpoints struct {
	BinanceWSURL string
	KrakenWSURL  string
}

// Manager owns one feed worker per (exchange, symbol) pair. Workers start
// lazily on first reference and stay alive for the process lifetime:
// repeated trading of the same symbol must not cause reconnect storms.
type Manager struct {
	endpoints Endpoints
	books     *book.State

	mu      sync.Mutex
	workers map[string]*infra.FeedWorker
}

// NewManager creates a manager writing into the shared book state.
func NewManager(endpoints Endpoints, books *book.State) *Manager {
	return &Manager{
		endpoints: endpoints,
		books:     books,
		workers:   make(map[string]*infra.FeedWorker),
	}
}

// Ensure starts the feed for a pair if it is not already running. The
// symbol must be in stream form. The worker is supervised under ctx and
// keeps reconnecting until the manager closes.
func (m *Manager) Ensure(ctx context.Context, exchange, streamSymbol string) error {
	key := exchange + "/" + streamSymbol

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[key]; ok {
		return nil
	}

	var handler infra.FeedHandler
	switch exchange {
	case "binance":
		handler = binance.NewTickerHandler(m.endpoints.BinanceWSURL, streamSymbol, m.books)
	case "kraken":
		handler = kraken.NewTickerHandler(m.endpoints.KrakenWSURL, streamSymbol, m.books)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownExchange, exchange)
	}

	// Register the symbol before any data arrives so consumers see a
	// zero "no data yet" entry instead of an unknown symbol.
	m.books.Init(streamSymbol)

	worker := infra.NewFeedWorker(handler)
	worker.Start(ctx)
	m.workers[key] = worker

	slog.Info("feed started",
		slog.String("exchange", exchange),
		slog.String("symbol", streamSymbol))
	return nil
}

// Active returns the number of running feed workers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Close stops every worker and waits for their loops to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := make([]*infra.FeedWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}
