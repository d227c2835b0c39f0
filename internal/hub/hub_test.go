package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"twap_go/internal/book"
)

type fakeSubscriber struct {
	id   string
	fail bool

	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection reset")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestBroadcastSnapshotShape(t *testing.T) {
	books := book.New()
	books.Set("BTCUSDT", 100.5, 100.6)
	books.Init("XBT/USD")

	h := New(books, time.Hour)
	sub := &fakeSubscriber{id: "a"}
	h.Attach(sub)

	h.broadcastOnce()

	if sub.received() != 1 {
		t.Fatalf("expected 1 payload, got %d", sub.received())
	}

	var got struct {
		OrderBook map[string]struct {
			Bid float64 `json:"bid_price"`
			Ask float64 `json:"ask_price"`
		} `json:"order_book"`
	}
	if err := json.Unmarshal(sub.payloads[0], &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e := got.OrderBook["BTCUSDT"]; e.Bid != 100.5 || e.Ask != 100.6 {
		t.Errorf("BTCUSDT entry = %+v", e)
	}
	// Symbols still waiting for data are present with zero prices.
	if e, ok := got.OrderBook["XBT/USD"]; !ok || e.Bid != 0 || e.Ask != 0 {
		t.Errorf("XBT/USD entry = %+v, ok=%v", e, ok)
	}
}

func TestBroadcastPrunesFailedSubscribers(t *testing.T) {
	books := book.New()
	books.Set("BTCUSDT", 1, 2)

	h := New(books, time.Hour)
	good1 := &fakeSubscriber{id: "good-1"}
	bad := &fakeSubscriber{id: "bad", fail: true}
	good2 := &fakeSubscriber{id: "good-2"}
	h.Attach(good1)
	h.Attach(bad)
	h.Attach(good2)

	h.broadcastOnce()

	if h.Len() != 2 {
		t.Fatalf("expected 2 subscribers after prune, got %d", h.Len())
	}
	bad.mu.Lock()
	closed := bad.closed
	bad.mu.Unlock()
	if !closed {
		t.Error("failed subscriber must be closed")
	}
	if good1.received() != 1 || good2.received() != 1 {
		t.Error("healthy subscribers must still receive the snapshot")
	}

	// The pruned subscriber stays gone on the next round.
	h.broadcastOnce()
	if good1.received() != 2 {
		t.Errorf("expected 2 payloads for survivor, got %d", good1.received())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := New(book.New(), 5*time.Millisecond)
	sub := &fakeSubscriber{id: "a"}
	h.Attach(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	sub.mu.Lock()
	closed := sub.closed
	sub.mu.Unlock()
	if !closed {
		t.Error("shutdown must close subscribers")
	}
	if h.Len() != 0 {
		t.Errorf("expected 0 subscribers after shutdown, got %d", h.Len())
	}
}

func TestServeWSDeliversSnapshots(t *testing.T) {
	books := book.New()
	books.Set("BTCUSDT", 100.5, 100.6)

	h := New(books, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got struct {
		OrderBook map[string]struct {
			Bid float64 `json:"bid_price"`
		} `json:"order_book"`
	}
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.OrderBook["BTCUSDT"].Bid != 100.5 {
		t.Errorf("unexpected snapshot: %s", payload)
	}
}
