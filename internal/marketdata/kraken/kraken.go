// Package kraken implements model.MarketData on Kraken's public REST API.
package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cryptoagent/internal/model"
)

const defaultRoot = "https://api.kraken.com"

var routes = map[string]string{
	"public.ticker": "/0/public/Ticker",
	"public.ohlc":   "/0/public/OHLC",
}

// ErrAPI wraps errors reported in Kraken's "error" array.
var ErrAPI = errors.New("kraken api error")

// OHLC intervals Kraken accepts, in minutes.
var validIntervals = map[int]bool{1: true, 5: true, 15: true, 30: true, 60: true, 240: true, 1440: true, 10080: true, 21600: true}

// Config configures the client.
type Config struct {
	RootURL string        // default: https://api.kraken.com
	Timeout time.Duration // default: 8s
}

// Client is a Kraken public-data client.
type Client struct {
	rootURL    string
	httpClient *http.Client
}

var _ model.MarketData = (*Client)(nil)

// New creates a client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Client{
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// envelope is Kraken's response wrapper.
type envelope struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, route string, params url.Values) (map[string]json.RawMessage, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.rootURL + uri
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: read body: %w", route, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kraken %s: status %d", route, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kraken %s: couldn't parse JSON response: %w", route, err)
	}
	if len(env.Error) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAPI, strings.Join(env.Error, "; "))
	}
	return env.Result, nil
}

// pairResult picks the entry for pair. Kraken sometimes keys results by an
// alternate name, so a single non-"last" entry is accepted too.
func pairResult(result map[string]json.RawMessage, pair string) (json.RawMessage, error) {
	if v, ok := result[pair]; ok {
		return v, nil
	}
	var only json.RawMessage
	n := 0
	for k, v := range result {
		if k == "last" {
			continue
		}
		only = v
		n++
	}
	if n == 1 {
		return only, nil
	}
	return nil, fmt.Errorf("kraken: pair %s missing from response", pair)
}

// SpotPrice returns the last trade price for pair.
func (c *Client) SpotPrice(ctx context.Context, pair string) (float64, error) {
	result, err := c.get(ctx, "public.ticker", url.Values{"pair": {pair}})
	if err != nil {
		return 0, err
	}
	raw, err := pairResult(result, pair)
	if err != nil {
		return 0, err
	}
	var ticker struct {
		C []string `json:"c"` // last trade closed: [price, lot volume]
	}
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return 0, fmt.Errorf("kraken ticker %s: %w", pair, err)
	}
	if len(ticker.C) == 0 {
		return 0, fmt.Errorf("kraken ticker %s: no last trade", pair)
	}
	price, err := strconv.ParseFloat(ticker.C[0], 64)
	if err != nil {
		return 0, fmt.Errorf("kraken ticker %s: price %q: %w", pair, ticker.C[0], err)
	}
	return price, nil
}

// HistoricalSeries returns closing prices at interval, oldest first. The
// newest candle is still forming and is left out.
func (c *Client) HistoricalSeries(ctx context.Context, pair string, interval time.Duration) ([]model.PricePoint, error) {
	minutes := int(interval / time.Minute)
	if interval%time.Minute != 0 || !validIntervals[minutes] {
		return nil, fmt.Errorf("kraken ohlc: unsupported interval %s", interval)
	}
	result, err := c.get(ctx, "public.ohlc", url.Values{
		"pair":     {pair},
		"interval": {strconv.Itoa(minutes)},
	})
	if err != nil {
		return nil, err
	}
	raw, err := pairResult(result, pair)
	if err != nil {
		return nil, err
	}

	// [time, open, high, low, close, vwap, volume, count]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("kraken ohlc %s: %w", pair, err)
	}
	if len(rows) > 0 {
		rows = rows[:len(rows)-1]
	}

	points := make([]model.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("kraken ohlc %s: short row", pair)
		}
		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: time: %w", pair, err)
		}
		var closeStr string
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: close: %w", pair, err)
		}
		price, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: close %q: %w", pair, closeStr, err)
		}
		points = append(points, model.PricePoint{Time: time.Unix(ts, 0).UTC(), Price: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}
