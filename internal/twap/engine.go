package twap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"twap_go/internal/domain"
	"twap_go/internal/orders"
	"twap_go/pkg/quant"
)

// SymbolResolver is the slice of the registry the engine needs.
type SymbolResolver interface {
	IsKnown(ctx context.Context, exchange, symbol string) (bool, error)
	StreamForm(ctx context.Context, exchange, symbol string) (string, error)
}

// FeedEnsurer lazily starts the live feed for a pair.
type FeedEnsurer interface {
	Ensure(ctx context.Context, exchange, streamSymbol string) error
}

// BookReader reads the shared best-bid/ask state.
type BookReader interface {
	Get(symbol string) (domain.OrderBookEntry, bool)
}

// Recorder journals accepted orders and simulated fills. A nil recorder
// disables journaling.
type Recorder interface {
	RecordOrder(ctx context.Context, o *domain.Order) error
	RecordFill(ctx context.Context, token string, ex domain.Execution) error
}

// Config bounds the market-data wait at order acceptance.
type Config struct {
	AcceptTimeout time.Duration
	PollInterval  time.Duration
}

// Engine accepts TWAP orders and runs each accepted schedule on its own
// goroutine. Simulation is aggressive IOC against the live top of book:
// a slice either fills in full at the current price or is skipped, and
// skipped slices are never retried.
type Engine struct {
	cfg      Config
	registry SymbolResolver
	feeds    FeedEnsurer
	books    BookReader
	store    *orders.Store
	journal  Recorder

	// after is swapped out in tests to drive schedules deterministically.
	after func(d time.Duration) <-chan time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// NewEngine wires the engine. journal may be nil.
func NewEngine(cfg Config, registry SymbolResolver, feeds FeedEnsurer, books BookReader, store *orders.Store, journal Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		feeds:    feeds,
		books:    books,
		store:    store,
		journal:  journal,
		after:    time.After,
		ctx:      context.Background(),
	}
}

// Start binds the lifecycle context for schedules accepted from now on.
// Cancelling it interrupts running schedules; interrupted orders keep
// their open status with whatever fills they accumulated.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
}

// Wait blocks until every accepted schedule has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Submit validates a request, waits for first market data, registers the
// order, and launches its schedule. It returns the accepted order as it
// stood at acceptance.
func (e *Engine) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	known, err := e.registry.IsKnown(ctx, req.Exchange, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: symbol %q not listed on %s", domain.ErrInvalidOrder, req.Symbol, req.Exchange)
	}

	streamSym, err := e.registry.StreamForm(ctx, req.Exchange, req.Symbol)
	if err != nil {
		return nil, err
	}
	if err := e.feeds.Ensure(ctx, req.Exchange, streamSym); err != nil {
		return nil, err
	}

	entry, err := e.waitForMarketData(ctx, req.Exchange, streamSym, req.Side)
	if err != nil {
		return nil, err
	}

	// Limit 0 means "trade at market": pin the limit to the price seen at
	// acceptance so every slice compares against a fixed reference.
	if req.LimitPrice == 0 {
		req.LimitPrice = entry.SidePrice(req.Side)
		slog.Info("marketable order pinned to observed price",
			slog.String("token", req.TokenID),
			slog.Float64("price", req.LimitPrice))
	}

	order, err := domain.NewOrder(req)
	if err != nil {
		return nil, err
	}
	order.Symbol = streamSym

	if err := e.store.Create(&order); err != nil {
		return nil, err
	}
	if e.journal != nil {
		if err := e.journal.RecordOrder(ctx, &order); err != nil {
			slog.Warn("order journaling failed",
				slog.String("token", order.TokenID),
				slog.Any("error", err))
		}
	}

	slog.Info("order accepted",
		slog.String("token", order.TokenID),
		slog.String("exchange", order.Exchange),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("quantity", order.Quantity),
		slog.Float64("limit", order.LimitPrice),
		slog.Int("steps", order.Steps))

	e.wg.Add(1)
	go e.runSchedule(e.ctx, order, req.Interval)

	accepted := order.Clone()
	return &accepted, nil
}

// waitForMarketData polls the book until the side-relevant price is
// non-zero or the accept timeout elapses.
func (e *Engine) waitForMarketData(ctx context.Context, exchange, streamSym string, side domain.Side) (domain.OrderBookEntry, error) {
	maxPolls := int(e.cfg.AcceptTimeout / e.cfg.PollInterval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	for poll := 0; ; poll++ {
		if entry, ok := e.books.Get(streamSym); ok && entry.SidePrice(side) != 0 {
			return entry, nil
		}
		if poll >= maxPolls {
			return domain.OrderBookEntry{}, fmt.Errorf("%w: no %s price for %s on %s within %s",
				domain.ErrNoMarketData, side, streamSym, exchange, e.cfg.AcceptTimeout)
		}
		if poll > 0 && poll%5 == 0 {
			slog.Info("waiting for market data",
				slog.String("exchange", exchange),
				slog.String("symbol", streamSym),
				slog.Int("polls", poll))
		}
		select {
		case <-ctx.Done():
			return domain.OrderBookEntry{}, ctx.Err()
		case <-e.after(e.cfg.PollInterval):
		}
	}
}

// runSchedule executes the order's slices at the fixed interval, then
// finalizes the status.
func (e *Engine) runSchedule(ctx context.Context, order domain.Order, interval time.Duration) {
	defer e.wg.Done()

	token := order.TokenID
	for step := 1; step <= order.Steps; step++ {
		select {
		case <-ctx.Done():
			slog.Info("schedule interrupted",
				slog.String("token", token),
				slog.Int("step", step))
			return
		case <-e.after(interval):
		}

		entry, ok := e.books.Get(order.Symbol)
		price := entry.SidePrice(order.Side)
		if !ok || price == 0 || !domain.Fillable(order.Side, price, order.LimitPrice) {
			slog.Debug("slice skipped",
				slog.String("token", token),
				slog.Int("step", step),
				slog.Float64("price", price))
			continue
		}

		ex := domain.Execution{Step: step, Price: price, Quantity: order.QtyPerStep}
		e.store.Update(token, func(o *domain.Order) {
			o.Executions = append(o.Executions, ex)
			o.ExecutedQuantity += ex.Quantity
		})
		if e.journal != nil {
			if err := e.journal.RecordFill(ctx, token, ex); err != nil {
				slog.Warn("fill journaling failed",
					slog.String("token", token),
					slog.Any("error", err))
			}
		}
		slog.Debug("slice filled",
			slog.String("token", token),
			slog.Int("step", step),
			slog.Float64("price", price),
			slog.Float64("quantity", ex.Quantity))
	}

	var final domain.Status
	e.store.Update(token, func(o *domain.Order) {
		if quant.AlmostGTE(o.ExecutedQuantity, o.Quantity) {
			o.Status = domain.StatusCompleted
		} else {
			o.Status = domain.StatusPartial
		}
		final = o.Status
	})
	slog.Info("schedule finished",
		slog.String("token", token),
		slog.String("status", string(final)))
}
