package robinhood

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

type currencyPair struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Tradability   string `json:"tradability"`
	AssetCurrency struct {
		Code string `json:"code"`
	} `json:"asset_currency"`
	QuoteCurrency struct {
		Code string `json:"code"`
	} `json:"quote_currency"`
	MinOrderPriceIncrement    decimal.Decimal `json:"min_order_price_increment"`
	MinOrderQuantityIncrement decimal.Decimal `json:"min_order_quantity_increment"`
}

type pairsResponse struct {
	Results []currencyPair `json:"results"`
}

func (c *Client) loadPairs(ctx context.Context) error {
	var resp pairsResponse
	if err := c.doRequest(ctx, http.MethodGet, "crypto.pairs", nil, &resp); err != nil {
		return err
	}
	pairs := make(map[string]currencyPair, len(resp.Results))
	byID := make(map[string]string, len(resp.Results))
	for _, p := range resp.Results {
		if p.QuoteCurrency.Code != "" && p.QuoteCurrency.Code != quoteCurrency {
			continue
		}
		code := strings.ToUpper(p.AssetCurrency.Code)
		pairs[code] = p
		byID[p.ID] = code
	}
	c.mu.Lock()
	c.pairs = pairs
	c.pairByID = byID
	c.mu.Unlock()
	return nil
}

func (c *Client) pair(symbol string) (currencyPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pairs[strings.ToUpper(symbol)]
	if !ok {
		return currencyPair{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Increments returns the minimum price and quantity steps for symbol.
func (c *Client) Increments(_ context.Context, symbol string) (model.Increments, error) {
	if err := c.requireLogin(); err != nil {
		return model.Increments{}, err
	}
	p, err := c.pair(symbol)
	if err != nil {
		return model.Increments{}, err
	}
	return model.Increments{Price: p.MinOrderPriceIncrement, Size: p.MinOrderQuantityIncrement}, nil
}

type orderRequest struct {
	AccountID      string `json:"account_id"`
	CurrencyPairID string `json:"currency_pair_id"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	RefID          string `json:"ref_id"`
	Side           string `json:"side"`
	TimeInForce    string `json:"time_in_force"`
	Type           string `json:"type"`
}

type order struct {
	ID             string  `json:"id"`
	Side           string  `json:"side"`
	State          string  `json:"state"`
	CurrencyPairID string  `json:"currency_pair_id"`
	CancelURL      *string `json:"cancel_url"`
	RejectReason   string  `json:"reject_reason"`
}

func (c *Client) placeOrder(ctx context.Context, side model.Side, symbol string, qty, price decimal.Decimal) (string, error) {
	if err := c.requireLogin(); err != nil {
		return "", err
	}
	p, err := c.pair(symbol)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	account := c.accountID
	c.mu.Unlock()

	req := orderRequest{
		AccountID:      account,
		CurrencyPairID: p.ID,
		Price:          price.String(),
		Quantity:       qty.String(),
		RefID:          c.newRefID(),
		Side:           string(side),
		TimeInForce:    "gtc",
		Type:           "limit",
	}
	var resp order
	if err := c.doRequest(ctx, http.MethodPost, "crypto.orders", req, &resp); err != nil {
		return "", err
	}
	if resp.State == "rejected" || resp.ID == "" {
		return "", fmt.Errorf("%w: %s %s %s@%s: %s", ErrRejected, side, symbol, qty, price, resp.RejectReason)
	}
	c.logger.Info("order placed", "side", side, "symbol", symbol, "order_id", resp.ID, "ref_id", req.RefID)
	return resp.ID, nil
}

// SubmitLimitBuy places a GTC limit buy.
func (c *Client) SubmitLimitBuy(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error) {
	return c.placeOrder(ctx, model.SideBuy, symbol, qty, price)
}

// SubmitLimitSell places a GTC limit sell.
func (c *Client) SubmitLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal) (string, error) {
	return c.placeOrder(ctx, model.SideSell, symbol, qty, price)
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	return c.doRequest(ctx, http.MethodPost, "crypto.order.cxl", struct{}{}, nil, orderID)
}

type ordersResponse struct {
	Results []order `json:"results"`
	Next    *string `json:"next"`
}

// maxOrderPages bounds how many pagination links OpenOrders follows.
const maxOrderPages = 100

// OpenOrders lists orders that can still be cancelled, across all pages.
func (c *Client) OpenOrders(ctx context.Context) ([]model.OpenOrder, error) {
	if err := c.requireLogin(); err != nil {
		return nil, err
	}
	reqURL, err := c.buildURL("crypto.orders")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	byID := c.pairByID
	c.mu.Unlock()

	var out []model.OpenOrder
	for page := 0; reqURL != ""; page++ {
		if page == maxOrderPages {
			return nil, fmt.Errorf("robinhood crypto.orders: more than %d pages", maxOrderPages)
		}
		if !strings.HasPrefix(reqURL, c.cfg.NummusRoot+"/") {
			return nil, fmt.Errorf("robinhood crypto.orders: unexpected next page %q", reqURL)
		}
		var resp ordersResponse
		if err := c.doURL(ctx, http.MethodGet, "crypto.orders", reqURL, nil, &resp); err != nil {
			return nil, err
		}
		for _, o := range resp.Results {
			if o.CancelURL == nil || *o.CancelURL == "" {
				continue
			}
			out = append(out, model.OpenOrder{ID: o.ID, Side: model.Side(o.Side), Instrument: byID[o.CurrencyPairID]})
		}
		reqURL = ""
		if resp.Next != nil {
			reqURL = *resp.Next
		}
	}
	return out, nil
}

// AvailableBalance returns the account's crypto buying power.
func (c *Client) AvailableBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := c.requireLogin(); err != nil {
		return decimal.Zero, err
	}
	var resp accountsResponse
	if err := c.doRequest(ctx, http.MethodGet, "accounts", nil, &resp); err != nil {
		return decimal.Zero, err
	}
	if len(resp.Results) == 0 {
		return decimal.Zero, fmt.Errorf("robinhood: no brokerage account")
	}
	a := resp.Results[0]
	raw := a.CryptoBPower
	if raw == "" {
		raw = a.BuyingPower
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("robinhood: buying power %q: %w", raw, err)
	}
	return bal, nil
}
