// Package tradingview implements model.Advisor on the TradingView scanner.
// Each technical rating column is counted as one buy, sell or neutral vote.
package tradingview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cryptoagent/internal/model"
)

const defaultRoot = "https://scanner.tradingview.com"

var routes = map[string]string{
	"scan.crypto": "/crypto/scan",
}

// ErrNoData is returned when the scanner has no row for the ticker.
var ErrNoData = errors.New("tradingview: no data for ticker")

// Interval suffixes appended to column names. The daily timeframe has none.
var intervals = map[string]string{
	"1m": "|1", "5m": "|5", "15m": "|15", "30m": "|30",
	"1h": "|60", "2h": "|120", "4h": "|240",
	"1d": "", "1w": "|1W", "1M": "|1M",
}

// Rating columns already reduced by TradingView to -1/0/1.
var ratingColumns = []string{
	"Rec.Stoch.RSI", "Rec.WR", "Rec.BBPower", "Rec.UO",
	"Rec.Ichimoku", "Rec.VWMA", "Rec.HullMA9",
}

// Moving averages compared with the close: below is a buy, above a sell.
var maColumns = []string{
	"EMA10", "SMA10", "EMA20", "SMA20", "EMA30", "SMA30",
	"EMA50", "SMA50", "EMA100", "SMA100", "EMA200", "SMA200",
}

// Config configures the client.
type Config struct {
	RootURL  string        // default: https://scanner.tradingview.com
	Exchange string        // e.g. COINBASE
	Interval string        // e.g. 15m
	Quote    string        // default: USD
	Timeout  time.Duration // default: 10s
}

// Client is a TradingView scanner client.
type Client struct {
	rootURL    string
	exchange   string
	suffix     string
	quote      string
	httpClient *http.Client
}

var _ model.Advisor = (*Client)(nil)

// New creates a client. An unknown interval is an error.
func New(cfg Config) (*Client, error) {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Exchange == "" {
		return nil, errors.New("tradingview: exchange is required")
	}
	suffix, ok := intervals[cfg.Interval]
	if !ok {
		return nil, fmt.Errorf("tradingview: unsupported interval %q", cfg.Interval)
	}
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		rootURL:    strings.TrimRight(cfg.RootURL, "/"),
		exchange:   strings.ToUpper(cfg.Exchange),
		suffix:     suffix,
		quote:      strings.ToUpper(cfg.Quote),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Ticker returns the scanner ticker for a brokerage symbol.
func (c *Client) Ticker(symbol string) string {
	return c.exchange + ":" + strings.ToUpper(symbol) + c.quote
}

func (c *Client) columns() []string {
	cols := make([]string, 0, len(ratingColumns)+len(maColumns)+2)
	cols = append(cols, "close"+c.suffix, "RSI"+c.suffix)
	for _, name := range ratingColumns {
		cols = append(cols, name+c.suffix)
	}
	for _, name := range maColumns {
		cols = append(cols, name+c.suffix)
	}
	return cols
}

type scanRequest struct {
	Symbols struct {
		Tickers []string `json:"tickers"`
		Query   struct {
			Types []string `json:"types"`
		} `json:"query"`
	} `json:"symbols"`
	Columns []string `json:"columns"`
}

type scanResponse struct {
	Data []struct {
		S string     `json:"s"`
		D []*float64 `json:"d"`
	} `json:"data"`
}

// Vote fetches the technical ratings for symbol and tallies them.
func (c *Client) Vote(ctx context.Context, symbol string) (model.Vote, error) {
	ticker := c.Ticker(symbol)
	cols := c.columns()

	var body scanRequest
	body.Symbols.Tickers = []string{ticker}
	body.Symbols.Query.Types = []string{}
	body.Columns = cols

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Vote{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rootURL+routes["scan.crypto"], bytes.NewReader(payload))
	if err != nil {
		return model.Vote{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Vote{}, fmt.Errorf("tradingview scan: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Vote{}, fmt.Errorf("tradingview scan: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Vote{}, fmt.Errorf("tradingview scan: status %d", resp.StatusCode)
	}

	var parsed scanResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return model.Vote{}, fmt.Errorf("tradingview scan: couldn't parse JSON response: %w", err)
	}
	for _, row := range parsed.Data {
		if row.S != ticker {
			continue
		}
		if len(row.D) != len(cols) {
			return model.Vote{}, fmt.Errorf("tradingview scan: got %d values for %d columns", len(row.D), len(cols))
		}
		return tally(row.D), nil
	}
	return model.Vote{}, fmt.Errorf("%w: %s", ErrNoData, ticker)
}

// tally counts values laid out as columns() returns them. Missing values
// are skipped.
func tally(d []*float64) model.Vote {
	var v model.Vote
	add := func(score int) {
		switch {
		case score > 0:
			v.Buy++
		case score < 0:
			v.Sell++
		default:
			v.Neutral++
		}
	}

	closePx, rsi := d[0], d[1]
	if rsi != nil {
		switch {
		case *rsi < 30:
			add(1)
		case *rsi > 70:
			add(-1)
		default:
			add(0)
		}
	}

	rest := d[2:]
	for _, r := range rest[:len(ratingColumns)] {
		if r == nil {
			continue
		}
		add(int(*r))
	}
	if closePx == nil {
		return v
	}
	for _, ma := range rest[len(ratingColumns):] {
		if ma == nil {
			continue
		}
		switch {
		case *ma < *closePx:
			add(1)
		case *ma > *closePx:
			add(-1)
		default:
			add(0)
		}
	}
	return v
}
