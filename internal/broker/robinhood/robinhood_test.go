package robinhood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoagent/internal/model"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type fakeRobinhood struct {
	t *testing.T

	mu       sync.Mutex
	orders   []orderRequest
	canceled []string
	reject   bool
	next     string // next link returned with the first orders page
}

func (f *fakeRobinhood) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		code, _ := body["mfa_code"].(string)
		if body["password"] != "pw" || !totp.Validate(code, testSecret) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"bad credentials"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":86400}`))
	})
	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		f.requireAuth(r)
		w.Write([]byte(`{"results":[{"id":"brk","buying_power":"10.00","crypto_buying_power":"250.75"}]}`))
	})
	mux.HandleFunc("/nummus/accounts/", func(w http.ResponseWriter, r *http.Request) {
		f.requireAuth(r)
		w.Write([]byte(`{"results":[{"id":"crypto-acct"}]}`))
	})
	mux.HandleFunc("/nummus/currency_pairs/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"id":"pair-eth","symbol":"ETH-USD","asset_currency":{"code":"ETH"},"quote_currency":{"code":"USD"},
			 "min_order_price_increment":"0.01","min_order_quantity_increment":"0.000001"},
			{"id":"pair-btc-eur","symbol":"BTC-EUR","asset_currency":{"code":"BTC"},"quote_currency":{"code":"EUR"},
			 "min_order_price_increment":"1","min_order_quantity_increment":"1"}
		]}`))
	})
	mux.HandleFunc("/nummus/orders/", func(w http.ResponseWriter, r *http.Request) {
		f.requireAuth(r)
		if strings.HasSuffix(r.URL.Path, "/cancel/") {
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/nummus/orders/"), "/cancel/")
			f.mu.Lock()
			f.canceled = append(f.canceled, id)
			f.mu.Unlock()
			w.Write([]byte(`{}`))
			return
		}
		if r.Method == http.MethodPost {
			var req orderRequest
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
			f.mu.Lock()
			f.orders = append(f.orders, req)
			reject := f.reject
			f.mu.Unlock()
			if reject {
				w.Write([]byte(`{"id":"o-x","state":"rejected","reject_reason":"insufficient funds"}`))
				return
			}
			w.Write([]byte(`{"id":"o-1","state":"unconfirmed"}`))
			return
		}
		if r.URL.Query().Get("cursor") == "2" {
			w.Write([]byte(`{"results":[
				{"id":"o-3","side":"sell","state":"confirmed","currency_pair_id":"pair-eth","cancel_url":"https://x/cancel/"}
			],"next":null}`))
			return
		}
		f.mu.Lock()
		next, _ := json.Marshal(f.next)
		if f.next == "" {
			next = []byte("null")
		}
		f.mu.Unlock()
		fmt.Fprintf(w, `{"results":[
			{"id":"o-1","side":"buy","state":"confirmed","currency_pair_id":"pair-eth","cancel_url":"https://x/cancel/"},
			{"id":"o-2","side":"sell","state":"filled","currency_pair_id":"pair-eth","cancel_url":null}
		],"next":%s}`, next)
	})
	return mux
}

func (f *fakeRobinhood) requireAuth(r *http.Request) {
	assert.Equal(f.t, "Bearer tok", r.Header.Get("Authorization"))
}

func newTestClient(t *testing.T, password string) (*Client, *fakeRobinhood) {
	c, fake, _ := newTestServer(t, password)
	return c, fake
}

func newTestServer(t *testing.T, password string) (*Client, *fakeRobinhood, *httptest.Server) {
	t.Helper()
	fake := &fakeRobinhood{t: t}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	c := New(Config{
		Username: "u", Password: password, TOTPSecret: testSecret,
		APIRoot: srv.URL + "/api", NummusRoot: srv.URL + "/nummus",
	}, nil)
	refs := 0
	c.newRefID = func() string { refs++; return "ref-" + string(rune('0'+refs)) }
	return c, fake, srv
}

func TestLogin_BadCredentials(t *testing.T) {
	c, _ := newTestClient(t, "wrong")
	err := c.Login(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestNotLoggedIn(t *testing.T) {
	c, _ := newTestClient(t, "pw")
	_, err := c.Increments(context.Background(), "ETH")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = c.SubmitLimitBuy(context.Background(), "ETH", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_Flow(t *testing.T) {
	c, fake := newTestClient(t, "pw")
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	inc, err := c.Increments(ctx, "eth")
	require.NoError(t, err)
	assert.True(t, inc.Price.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, inc.Size.Equal(decimal.RequireFromString("0.000001")))

	_, err = c.Increments(ctx, "BTC")
	assert.ErrorIs(t, err, ErrUnknownSymbol, "non-USD pairs are ignored")

	id, err := c.SubmitLimitBuy(ctx, "ETH", decimal.RequireFromString("0.5"), decimal.RequireFromString("2000.01"))
	require.NoError(t, err)
	assert.Equal(t, "o-1", id)

	_, err = c.SubmitLimitSell(ctx, "ETH", decimal.RequireFromString("0.5"), decimal.RequireFromString("2100"))
	require.NoError(t, err)

	fake.mu.Lock()
	orders := fake.orders
	fake.mu.Unlock()
	require.Len(t, orders, 2)
	buy := orders[0]
	assert.Equal(t, "crypto-acct", buy.AccountID)
	assert.Equal(t, "pair-eth", buy.CurrencyPairID)
	assert.Equal(t, "2000.01", buy.Price)
	assert.Equal(t, "0.5", buy.Quantity)
	assert.Equal(t, "buy", buy.Side)
	assert.Equal(t, "limit", buy.Type)
	assert.Equal(t, "gtc", buy.TimeInForce)
	assert.NotEqual(t, buy.RefID, orders[1].RefID, "each order gets its own ref_id")

	open, err := c.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.OpenOrder{{ID: "o-1", Side: model.SideBuy, Instrument: "ETH"}}, open)

	require.NoError(t, c.CancelOrder(ctx, "o-1"))
	fake.mu.Lock()
	assert.Equal(t, []string{"o-1"}, fake.canceled)
	fake.mu.Unlock()

	bal, err := c.AvailableBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("250.75")))
}

func TestOpenOrders_FollowsNextPages(t *testing.T) {
	c, fake, srv := newTestServer(t, "pw")
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	fake.mu.Lock()
	fake.next = srv.URL + "/nummus/orders/?cursor=2"
	fake.mu.Unlock()

	open, err := c.OpenOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.OpenOrder{
		{ID: "o-1", Side: model.SideBuy, Instrument: "ETH"},
		{ID: "o-3", Side: model.SideSell, Instrument: "ETH"},
	}, open)
}

func TestOpenOrders_RefusesForeignNextLink(t *testing.T) {
	c, fake := newTestClient(t, "pw")
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	fake.mu.Lock()
	fake.next = "https://elsewhere.example/orders/?cursor=2"
	fake.mu.Unlock()

	_, err := c.OpenOrders(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected next page")
}

func TestClient_RejectedOrder(t *testing.T) {
	c, fake := newTestClient(t, "pw")
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	fake.mu.Lock()
	fake.reject = true
	fake.mu.Unlock()

	_, err := c.SubmitLimitBuy(ctx, "ETH", decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestIsRefusal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("submit: %w", ErrRejected), true},
		{ErrUnknownSymbol, true},
		{&APIError{Route: "orders", Status: http.StatusBadRequest}, true},
		{fmt.Errorf("wrap: %w", &APIError{Route: "orders", Status: http.StatusNotFound}), true},
		{&APIError{Route: "orders", Status: http.StatusUnauthorized}, false},
		{&APIError{Route: "orders", Status: http.StatusTooManyRequests}, false},
		{&APIError{Route: "orders", Status: http.StatusBadGateway}, false},
		{ErrNotLoggedIn, false},
		{errors.New("dial tcp: connection refused"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsRefusal(c.err), "%v", c.err)
	}
}
