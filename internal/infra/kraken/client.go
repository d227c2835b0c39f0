package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"twap_go/internal/domain"
	"twap_go/internal/infra"
	"twap_go/internal/klines"
	"twap_go/internal/registry"
	"twap_go/pkg/quant"
)

// validIntervals is Kraken's OHLC interval whitelist, in minutes.
var validIntervals = map[string]bool{
	"1": true, "5": true, "15": true, "30": true, "60": true,
	"240": true, "1440": true, "10080": true, "21600": true,
}

// Client talks to the Kraken public REST API for pair discovery and
// historical candles.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *infra.RateLimiter
	breaker    *infra.CircuitBreaker
}

// NewClient creates a client over the given REST root, e.g.
// "https://api.kraken.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    infra.GetKrakenRestLimiter(),
		breaker:    infra.NewCircuitBreaker("kraken-rest"),
	}
}

// Name returns the exchange identifier.
func (c *Client) Name() string { return "kraken" }

type assetPairInfo struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
}

type assetPairsResponse struct {
	Error  []string                 `json:"error"`
	Result map[string]assetPairInfo `json:"result"`
}

// FetchPairs lists tradable pairs. Kraken encodes pairs two ways: wsname
// ("XBT/USD") subscribes to the websocket feed, altname ("XBTUSD")
// addresses the REST API. Pairs lacking a wsname fall back to a
// delimiter-inserted altname.
func (c *Client) FetchPairs(ctx context.Context) ([]registry.Pair, error) {
	var resp assetPairsResponse
	if err := c.get(ctx, c.baseURL+"/0/public/AssetPairs", &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("%w: kraken API error: %s", domain.ErrUpstreamUnavailable, strings.Join(resp.Error, ", "))
	}

	pairs := make([]registry.Pair, 0, len(resp.Result))
	for _, info := range resp.Result {
		if info.Altname == "" {
			continue
		}
		ws := info.WSName
		if ws == "" {
			ws = splitAltname(info.Altname)
			if ws == "" {
				continue
			}
		}
		pairs = append(pairs, registry.Pair{Stream: ws, Query: info.Altname})
	}

	// Map iteration order is random; keep the two form lists stable.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Stream < pairs[j].Stream })
	return pairs, nil
}

// splitAltname approximates a wsname from an altname by inserting the
// pair delimiter at the midpoint. Only used for the rare pairs Kraken
// publishes without a wsname.
func splitAltname(altname string) string {
	if strings.Contains(altname, "/") || len(altname) < 6 {
		return ""
	}
	mid := len(altname) / 2
	return altname[:mid] + "/" + altname[mid:]
}

type ohlcResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// ValidInterval reports whether Kraken supports the OHLC interval.
func (c *Client) ValidInterval(interval string) bool {
	return validIntervals[interval]
}

// Klines fetches candles. Kraken rows are
// [time(sec), open, high, low, close, vwap, volume, count]: open time
// must be scaled to milliseconds and volume sits at index 6.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]klines.Kline, error) {
	q := url.Values{}
	q.Set("pair", symbol)
	q.Set("interval", interval)
	q.Set("since", "0")

	var resp ohlcResponse
	if err := c.get(ctx, c.baseURL+"/0/public/OHLC?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("%w: kraken API error: %s", domain.ErrUpstreamUnavailable, strings.Join(resp.Error, ", "))
	}

	// The result holds the candle array under the pair's key plus a
	// "last" cursor; take the candle key.
	var rows [][]json.RawMessage
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("%w: decoding kraken OHLC rows: %v", domain.ErrUpstreamUnavailable, err)
		}
		break
	}

	out := make([]klines.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			return nil, fmt.Errorf("%w: short OHLC row from kraken", domain.ErrUpstreamUnavailable)
		}
		k, err := parseOHLCRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func parseOHLCRow(row []json.RawMessage) (klines.Kline, error) {
	var openTimeSec int64
	if err := json.Unmarshal(row[0], &openTimeSec); err != nil {
		return klines.Kline{}, fmt.Errorf("open time: %w", err)
	}

	// open, high, low, close at 1..4; volume at 6 (5 is vwap).
	idx := []int{1, 2, 3, 4, 6}
	fields := [5]float64{}
	for i, j := range idx {
		var s string
		if err := json.Unmarshal(row[j], &s); err != nil {
			return klines.Kline{}, fmt.Errorf("OHLC field %d: %w", j, err)
		}
		f, err := quant.ParsePrice(s)
		if err != nil {
			return klines.Kline{}, err
		}
		fields[i] = f
	}

	return klines.Kline{
		OpenTime: openTimeSec * 1000,
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
		return fmt.Errorf("%w: kraken REST circuit open", domain.ErrUpstreamUnavailable)
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
		return fmt.Errorf("%w: kraken returned status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%w: decoding kraken response: %v", domain.ErrUpstreamUnavailable, err)
	}

	c.breaker.RecordSuccess()
	return nil
}
