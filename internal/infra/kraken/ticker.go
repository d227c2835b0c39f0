package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"twap_go/internal/infra"
	"twap_go/pkg/quant"
)

// subscribeRequest is Kraken's explicit ticker subscription handshake.
type subscribeRequest struct {
	Event        string   `json:"event"`
	ReqID        int      `json:"reqid"`
	Pair         []string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

// eventFrame covers Kraken's object-shaped control messages
// (systemStatus, heartbeat, subscriptionStatus).
type eventFrame struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ErrorMessage string `json:"errorMessage"`
}

// tickerPayload is the second element of a ticker array frame. Best bid
// and ask are mixed-type arrays whose first element is the price as a
// string, so elements stay raw until positionally decoded.
type tickerPayload struct {
	Bid []json.RawMessage `json:"b"`
	Ask []json.RawMessage `json:"a"`
}

// BookWriter receives parsed best bid/ask updates; satisfied by the
// shared order-book state.
type BookWriter interface {
	Set(symbol string, bid, ask float64)
}

// TickerHandler consumes Kraken's ticker channel for one pair. Kraken
// multiplexes channels over a single endpoint, so data frames are
// array-framed: [channelID, payload, "ticker", pair], requiring
// positional decoding, and an explicit subscribe must be sent before any
// data flows.
type TickerHandler struct {
	wsURL string
	pair  string // stream form (wsname), e.g. "XBT/USD"
	books BookWriter
}

// NewTickerHandler creates a handler for one pair in stream form.
func NewTickerHandler(wsURL, pair string, books BookWriter) *TickerHandler {
	return &TickerHandler{wsURL: wsURL, pair: pair, books: books}
}

func (h *TickerHandler) Name() string { return "kraken/" + h.pair }
func (h *TickerHandler) URL() string  { return h.wsURL }

// Subscribe sends the ticker subscription for the handler's pair.
func (h *TickerHandler) Subscribe(ctx context.Context, w infra.FrameWriter) error {
	req := subscribeRequest{Event: "subscribe", ReqID: 1, Pair: []string{h.pair}}
	req.Subscription.Name = "ticker"

	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return w.Write(websocket.TextMessage, b)
}

// HandleFrame decodes one frame. Object frames are control messages:
// subscription errors are logged, the rest dropped silently. Array frames
// carry ticker data for exactly this pair.
func (h *TickerHandler) HandleFrame(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("empty frame")
	}

	if frame[0] == '{' {
		var ev eventFrame
		if err := json.Unmarshal(frame, &ev); err != nil {
			return fmt.Errorf("malformed event frame: %w", err)
		}
		if ev.Event == "subscriptionStatus" && ev.Status == "error" {
			slog.Warn("kraken subscription rejected",
				slog.String("pair", h.pair),
				slog.String("error", ev.ErrorMessage))
		}
		return nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return fmt.Errorf("malformed array frame: %w", err)
	}
	// [channelID, payload, "ticker", pair]
	if len(parts) < 4 {
		return fmt.Errorf("array frame with %d elements", len(parts))
	}

	var channel string
	if err := json.Unmarshal(parts[2], &channel); err != nil || channel != "ticker" {
		return fmt.Errorf("not a ticker frame")
	}
	var pair string
	if err := json.Unmarshal(parts[3], &pair); err != nil {
		return fmt.Errorf("frame pair: %w", err)
	}
	if pair != h.pair {
		return fmt.Errorf("frame for %s on %s subscription", pair, h.pair)
	}

	var payload tickerPayload
	if err := json.Unmarshal(parts[1], &payload); err != nil {
		return fmt.Errorf("ticker payload: %w", err)
	}
	if len(payload.Bid) == 0 || len(payload.Ask) == 0 {
		return fmt.Errorf("ticker payload without bid/ask")
	}

	bid, err := parsePriceField(payload.Bid[0])
	if err != nil {
		return fmt.Errorf("bid: %w", err)
	}
	ask, err := parsePriceField(payload.Ask[0])
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	h.books.Set(h.pair, bid, ask)
	return nil
}

func parsePriceField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("price field %s: %w", raw, err)
	}
	return quant.ParsePrice(s)
}
