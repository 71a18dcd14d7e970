package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the lifecycle stage of a Lot.
type LotStatus string

const (
	// LotOpen is a lot created from an accepted buy order.
	LotOpen LotStatus = "open"
	// LotPendingSell is a lot whose sell order was submitted. Its quantity is
	// zero and it is swept from the ledger on a later pass.
	LotPendingSell LotStatus = "pending_sell"
)

// Lot is one position in a single instrument, tied to the buy order that opened it.
type Lot struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OrderID    string          `json:"order_id"`
	EntryTime  time.Time       `json:"entry_time"`
	Status     LotStatus       `json:"status"`

	// Set when the sell order is submitted.
	SellOrderID string          `json:"sell_order_id,omitempty"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	SoldAt      time.Time       `json:"sold_at,omitempty"`
}

// Cost returns quantity × entry price.
func (l *Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.EntryPrice)
}

// IsOpen reports whether the lot still holds a sellable quantity.
func (l *Lot) IsOpen() bool {
	return l.Status == LotOpen && l.Quantity.IsPositive()
}
