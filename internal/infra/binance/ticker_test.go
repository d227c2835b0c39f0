package binance

import (
	"context"
	"sync"
	"testing"
)

type fakeBook struct {
	mu   sync.Mutex
	sets []struct {
		symbol   string
		bid, ask float64
	}
}

func (f *fakeBook) Set(symbol string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, struct {
		symbol   string
		bid, ask float64
	}{symbol, bid, ask})
}

func TestTickerHandlerURL(t *testing.T) {
	h := NewTickerHandler("wss://stream.binance.com:9443/ws", "BTCUSDT", &fakeBook{})
	want := "wss://stream.binance.com:9443/ws/btcusdt@bookTicker"
	if got := h.URL(); got != want {
		t.Errorf("URL() = %s, want %s", got, want)
	}
}

func TestHandleFrameUpdatesBook(t *testing.T) {
	book := &fakeBook{}
	h := NewTickerHandler("wss://x", "BTCUSDT", book)

	frame := []byte(`{"u":400900217,"s":"BTCUSDT","b":"96234.51000000","B":"31.21","a":"96234.52000000","A":"40.66"}`)
	if err := h.HandleFrame(context.Background(), frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}

	if len(book.sets) != 1 {
		t.Fatalf("expected 1 book update, got %d", len(book.sets))
	}
	s := book.sets[0]
	if s.symbol != "BTCUSDT" || s.bid != 96234.51 || s.ask != 96234.52 {
		t.Errorf("unexpected update: %+v", s)
	}
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	book := &fakeBook{}
	h := NewTickerHandler("wss://x", "BTCUSDT", book)

	for _, frame := range []string{
		`not json at all`,
		`{"result":null,"id":1}`, // stream control reply, no symbol
		`{"s":"BTCUSDT","b":"oops","a":"1.0"}`,
	} {
		if err := h.HandleFrame(context.Background(), []byte(frame)); err == nil {
			t.Errorf("frame %q should be reported dropped", frame)
		}
	}
	if len(book.sets) != 0 {
		t.Errorf("malformed frames must not update the book, got %d updates", len(book.sets))
	}
}

func TestHandleFrameIgnoresForeignSymbol(t *testing.T) {
	book := &fakeBook{}
	h := NewTickerHandler("wss://x", "BTCUSDT", book)

	frame := []byte(`{"s":"ETHUSDT","b":"3000.1","a":"3000.2"}`)
	if err := h.HandleFrame(context.Background(), frame); err == nil {
		t.Error("foreign-symbol frame should be reported dropped")
	}
	if len(book.sets) != 0 {
		t.Error("foreign-symbol frame must not update the book")
	}
}

// A malformed frame mid-stream must not poison subsequent valid frames.
func TestHandleFrameRecoversAfterBadFrame(t *testing.T) {
	book := &fakeBook{}
	h := NewTickerHandler("wss://x", "BTCUSDT", book)

	_ = h.HandleFrame(context.Background(), []byte(`garbage`))
	frame := []byte(`{"s":"BTCUSDT","b":"100.5","a":"100.6"}`)
	if err := h.HandleFrame(context.Background(), frame); err != nil {
		t.Fatalf("valid frame after garbage: %v", err)
	}
	if len(book.sets) != 1 || book.sets[0].bid != 100.5 {
		t.Errorf("expected the valid frame to land, got %+v", book.sets)
	}
}
