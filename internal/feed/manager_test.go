package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"twap_go/internal/book"
	"twap_go/internal/domain"
)

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"s":"BTCUSDT","b":"100.5","a":"100.6"}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestEnsureStartsFeedOnce(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	books := book.New()
	m := NewManager(Endpoints{BinanceWSURL: wsURL(server)}, books)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Ensure(ctx, "binance", "BTCUSDT"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := m.Ensure(ctx, "binance", "BTCUSDT"); err != nil {
		t.Fatalf("Ensure (repeat): %v", err)
	}
	if got := m.Active(); got != 1 {
		t.Fatalf("expected 1 worker after repeated Ensure, got %d", got)
	}

	// The symbol is registered immediately, before any frame arrives.
	if _, ok := books.Get("BTCUSDT"); !ok {
		t.Fatal("Ensure must register the symbol in the book")
	}

	deadline := time.After(2 * time.Second)
	for {
		if e, _ := books.Get("BTCUSDT"); e.Bid == 100.5 && e.Ask == 100.6 {
			break
		}
		select {
		case <-deadline:
			e, _ := books.Get("BTCUSDT")
			t.Fatalf("feed never updated the book, last entry %+v", e)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnsureDistinctSymbols(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	m := NewManager(Endpoints{BinanceWSURL: wsURL(server)}, book.New())
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Ensure(ctx, "binance", "BTCUSDT")
	m.Ensure(ctx, "binance", "ETHUSDT")
	if got := m.Active(); got != 2 {
		t.Fatalf("expected 2 workers, got %d", got)
	}
}

func TestEnsureUnknownExchange(t *testing.T) {
	m := NewManager(Endpoints{}, book.New())
	defer m.Close()

	err := m.Ensure(context.Background(), "bitmex", "XBTUSD")
	if !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
	if m.Active() != 0 {
		t.Error("failed Ensure must not leave a worker behind")
	}
}

func TestCloseStopsWorkers(t *testing.T) {
	server := newWSServer(t)
	defer server.Close()

	m := NewManager(Endpoints{BinanceWSURL: wsURL(server)}, book.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Ensure(ctx, "binance", "BTCUSDT")
	m.Close()
}
