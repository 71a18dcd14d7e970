package kraken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{RootURL: srv.URL})
}

func TestSpotPrice(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		assert.Equal(t, "XETHZUSD", r.URL.Query().Get("pair"))
		w.Write([]byte(`{"error":[],"result":{"XETHZUSD":{"a":["2001.1","1","1.0"],"c":["2000.55","0.01"]}}}`))
	})

	price, err := c.SpotPrice(context.Background(), "XETHZUSD")
	require.NoError(t, err)
	assert.Equal(t, 2000.55, price)
}

func TestSpotPrice_APIError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EQuery:Unknown asset pair"]}`))
	})

	_, err := c.SpotPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
}

func TestSpotPrice_HTTPError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.SpotPrice(context.Background(), "XETHZUSD")
	assert.Error(t, err)
}

func TestHistoricalSeries(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/OHLC", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":[
			[1700000000,"1","1","1","100.5","1","1",1],
			[1700000300,"1","1","1","101.5","1","1",1],
			[1700000600,"1","1","1","999","1","1",1]
		],"last":1700000600}}`))
	})

	points, err := c.HistoricalSeries(context.Background(), "XXBTZUSD", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, points, 2, "forming candle dropped")
	assert.Equal(t, 100.5, points[0].Price)
	assert.Equal(t, time.Unix(1700000300, 0).UTC(), points[1].Time)
}

func TestHistoricalSeries_AlternateKey(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":[],"result":{"XETHZUSD":[[1700000000,"1","1","1","5","1","1",1],[1700000060,"1","1","1","6","1","1",1]],"last":1}}`))
	})
	points, err := c.HistoricalSeries(context.Background(), "ETHUSD", time.Minute)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestHistoricalSeries_UnsupportedInterval(t *testing.T) {
	c := New(Config{RootURL: "http://127.0.0.1:0"})
	_, err := c.HistoricalSeries(context.Background(), "XETHZUSD", 7*time.Minute)
	assert.Error(t, err)
	_, err = c.HistoricalSeries(context.Background(), "XETHZUSD", 90*time.Second)
	assert.Error(t, err)
}
