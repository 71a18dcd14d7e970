package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Increments is the smallest price and size granularity the brokerage accepts
// for an instrument.
type Increments struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OpenOrder is an order the brokerage reports as not yet filled.
type OpenOrder struct {
	ID         string `json:"id"`
	Side       Side   `json:"side"`
	Instrument string `json:"instrument"`
}

// Vote is an external advisory tally of buy/sell/neutral recommendations.
type Vote struct {
	Buy     int `json:"buy"`
	Sell    int `json:"sell"`
	Neutral int `json:"neutral"`
}

// Instrument maps the market-data pair name to the brokerage symbol.
type Instrument struct {
	Pair   string `json:"pair" yaml:"pair"`     // e.g. XETHZUSD
	Symbol string `json:"symbol" yaml:"symbol"` // e.g. ETH
}

// TradeRecord is one accepted order as written to the trade journal.
type TradeRecord struct {
	OrderID    string          `json:"order_id"`
	Instrument string          `json:"instrument"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Profit     decimal.Decimal `json:"profit"`
	Reason     string          `json:"reason"`
	Time       time.Time       `json:"time"`
}
