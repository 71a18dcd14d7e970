package tradingview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoagent/internal/model"
)

func f(v float64) *float64 { return &v }

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{RootURL: srv.URL, Exchange: "coinbase", Interval: "15m"})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Exchange: "COINBASE", Interval: "7m"})
	assert.Error(t, err)
	_, err = New(Config{Interval: "15m"})
	assert.Error(t, err)
}

func TestTicker(t *testing.T) {
	c, err := New(Config{Exchange: "coinbase", Interval: "1h"})
	require.NoError(t, err)
	assert.Equal(t, "COINBASE:ETHUSD", c.Ticker("eth"))
}

func TestVote(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crypto/scan", r.URL.Path)

		var req scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"COINBASE:BTCUSD"}, req.Symbols.Tickers)
		for _, col := range req.Columns {
			assert.True(t, strings.HasSuffix(col, "|15"), col)
		}

		// close, RSI, 7 ratings, 12 moving averages
		d := []any{100.0, 25.0, 1, 1, 0, -1, 1, nil, 1}
		for i := 0; i < 12; i++ {
			d = append(d, 90.0)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"totalCount": 1,
			"data":       []map[string]any{{"s": "COINBASE:BTCUSD", "d": d}},
		})
	})

	v, err := c.Vote(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, model.Vote{Buy: 17, Sell: 1, Neutral: 1}, v)
}

func TestVote_NoRow(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalCount":0,"data":[]}`))
	})
	_, err := c.Vote(context.Background(), "DOGE")
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestVote_HTTPError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.Vote(context.Background(), "ETH")
	assert.Error(t, err)
}

func TestTally_MovingAveragesAboveClose(t *testing.T) {
	d := make([]*float64, 2+len(ratingColumns)+len(maColumns))
	d[0] = f(100)
	d[1] = f(75)
	for i := 2 + len(ratingColumns); i < len(d); i++ {
		d[i] = f(120)
	}
	v := tally(d)
	assert.Equal(t, model.Vote{Sell: 13}, v)
}
