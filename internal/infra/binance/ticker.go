package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"twap_go/internal/infra"
	"twap_go/pkg/quant"
)

// bookTickerFrame is Binance's flat ticker shape: a single object with
// the symbol and the current best bid/ask, all prices as strings.
type bookTickerFrame struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// BookWriter receives parsed best bid/ask updates; satisfied by the
// shared order-book state.
type BookWriter interface {
	Set(symbol string, bid, ask float64)
}

// TickerHandler consumes one symbol's @bookTicker stream. Binance
// subscribes through the URL path, so no handshake is sent.
type TickerHandler struct {
	baseURL string
	symbol  string // stream form, e.g. "BTCUSDT"
	books   BookWriter
}

// NewTickerHandler creates a handler for one symbol. baseURL is the raw
// websocket root, e.g. "wss://stream.binance.com:9443/ws".
func NewTickerHandler(baseURL, symbol string, books BookWriter) *TickerHandler {
	return &TickerHandler{baseURL: baseURL, symbol: symbol, books: books}
}

func (h *TickerHandler) Name() string {
	return "binance/" + h.symbol
}

func (h *TickerHandler) URL() string {
	return fmt.Sprintf("%s/%s@bookTicker", h.baseURL, strings.ToLower(h.symbol))
}

// Subscribe is a no-op: the stream path carries the subscription.
func (h *TickerHandler) Subscribe(ctx context.Context, _ infra.FrameWriter) error {
	return nil
}

// HandleFrame parses one bookTicker frame and updates the shared book.
// Anything that does not decode as a ticker for this symbol is dropped.
func (h *TickerHandler) HandleFrame(ctx context.Context, frame []byte) error {
	var t bookTickerFrame
	if err := json.Unmarshal(frame, &t); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	if t.Symbol == "" {
		return fmt.Errorf("frame without symbol field")
	}
	if t.Symbol != h.symbol {
		return fmt.Errorf("frame for %s on %s stream", t.Symbol, h.symbol)
	}

	bid, err := quant.ParsePrice(t.Bid)
	if err != nil {
		return fmt.Errorf("bid: %w", err)
	}
	ask, err := quant.ParsePrice(t.Ask)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	h.books.Set(h.symbol, bid, ask)
	return nil
}
