package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FrameWriter sends one message on an open feed connection. FeedWorker
// implements it; tests substitute fakes.
type FrameWriter interface {
	Write(msgType int, data []byte) error
}

// FeedHandler supplies the exchange-specific half of a feed connection:
// where to dial, what to send after connecting, and how to consume frames.
type FeedHandler interface {
	// Name identifies the connector in logs, e.g. "kraken/XBT/USD".
	Name() string
	// URL is the websocket endpoint to dial.
	URL() string
	// Subscribe is invoked once per established connection, before any
	// frame is read. Exchanges without an explicit handshake return nil.
	Subscribe(ctx context.Context, w FrameWriter) error
	// HandleFrame consumes one received frame. A returned error means the
	// frame was dropped; it never tears down the connection.
	HandleFrame(ctx context.Context, frame []byte) error
}

// FeedWorker drives one persistent exchange feed connection through the
// Disconnected -> Connecting -> Streaming -> Backoff cycle. Socket-level
// errors trigger backoff and reconnect; frame-level errors are absorbed by
// the handler. The worker has no caller-visible failure mode.
type FeedWorker struct {
	handler FeedHandler

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// ReadTimeout bounds a single blocking read. Ticker feeds push at
	// sub-second cadence, so an idle minute means a dead connection.
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
}

// NewFeedWorker creates a worker for the given handler. Start must be
// called to begin streaming.
func NewFeedWorker(handler FeedHandler) *FeedWorker {
	return &FeedWorker{
		handler:          handler,
		ReadTimeout:      60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Start launches the supervised connect loop.
func (w *FeedWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (w *FeedWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConn()
	w.wg.Wait()
}

func (w *FeedWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("feed connect failed",
				slog.String("feed", w.handler.Name()),
				slog.Int("retry", retry),
				slog.Any("error", err))
			delay := ReconnectDelay(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.stream(ctx)

		// Streaming ended on a socket error; wait the floor before redialing.
		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectDelay(0)):
		}
	}
}

func (w *FeedWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.Subscribe(ctx, w); err != nil {
		w.closeConn()
		return fmt.Errorf("subscribe: %w", err)
	}

	slog.Info("feed connected", slog.String("feed", w.handler.Name()))
	return nil
}

func (w *FeedWorker) stream(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, frame, err := c.ReadMessage()
		if err != nil {
			slog.Warn("feed read error",
				slog.String("feed", w.handler.Name()),
				slog.Any("error", err))
			w.closeConn()
			return
		}

		// Frame errors drop the frame only, never the connection.
		if err := w.handler.HandleFrame(ctx, frame); err != nil {
			slog.Debug("feed frame dropped",
				slog.String("feed", w.handler.Name()),
				slog.Any("error", err))
		}
	}
}

// Write sends one message on the current connection, serializing
// concurrent writers.
func (w *FeedWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("feed %s: not connected", w.handler.Name())
	}
	return c.WriteMessage(msgType, data)
}

func (w *FeedWorker) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
