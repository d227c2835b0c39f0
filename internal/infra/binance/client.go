package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"twap_go/internal/domain"
	"twap_go/internal/infra"
	"twap_go/internal/klines"
	"twap_go/internal/registry"
	"twap_go/pkg/quant"
)

// validIntervals is Binance's kline interval whitelist.
var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// Client talks to the Binance public REST API for pair discovery and
// historical candles.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *infra.RateLimiter
	breaker    *infra.CircuitBreaker
}

// NewClient creates a client over the given REST root, e.g.
// "https://api.binance.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    infra.GetBinanceRestLimiter(),
		breaker:    infra.NewCircuitBreaker("binance-rest"),
	}
}

// Name returns the exchange identifier.
func (c *Client) Name() string { return "binance" }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// FetchPairs lists all actively trading pairs. Binance uses the same
// encoding on its streams and its REST API, so both forms are identical.
func (c *Client) FetchPairs(ctx context.Context) ([]registry.Pair, error) {
	var info exchangeInfoResponse
	if err := c.get(ctx, c.baseURL+"/api/v3/exchangeInfo", &info); err != nil {
		return nil, err
	}

	pairs := make([]registry.Pair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, registry.Pair{Stream: s.Symbol, Query: s.Symbol})
	}
	return pairs, nil
}

// ValidInterval reports whether Binance supports the kline interval.
func (c *Client) ValidInterval(interval string) bool {
	return validIntervals[interval]
}

// Klines fetches candles. Binance rows already carry
// [openTime, open, high, low, close, volume, ...]; indexes 0..5 pass
// through.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]klines.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", fmt.Sprintf("%d", limit))

	var rows [][]json.RawMessage
	if err := c.get(ctx, c.baseURL+"/api/v3/klines?"+q.Encode(), &rows); err != nil {
		return nil, err
	}

	out := make([]klines.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%w: short kline row from binance", domain.ErrUpstreamUnavailable)
		}
		k, err := parseKlineRow(row[0], row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// parseKlineRow decodes one candle from raw JSON cells: a numeric open
// time in milliseconds, then five string-encoded numbers.
func parseKlineRow(rawTime, o, h, l, cl, v json.RawMessage) (klines.Kline, error) {
	var openTime int64
	if err := json.Unmarshal(rawTime, &openTime); err != nil {
		return klines.Kline{}, fmt.Errorf("open time: %w", err)
	}

	fields := [5]float64{}
	for i, raw := range []json.RawMessage{o, h, l, cl, v} {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return klines.Kline{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		f, err := quant.ParsePrice(s)
		if err != nil {
			return klines.Kline{}, err
		}
		fields[i] = f
	}

	return klines.Kline{
		OpenTime: openTime,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// get performs one rate-limited, breaker-guarded GET and decodes the JSON
// body into out.
func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%w: binance REST circuit open", domain.ErrUpstreamUnavailable)
	}
	c.limiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: binance returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: decoding binance response: %v", domain.ErrUpstreamUnavailable, err)
	}

	c.breaker.RecordSuccess()
	return nil
}
