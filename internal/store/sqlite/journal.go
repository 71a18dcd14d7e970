package sqlite

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/model"
)

// Journal persists accepted orders to the trades table for analysis and audit.
// It shares the store's connection.
type Journal struct {
	s *Store
}

// Journal returns the trade journal backed by this database.
func (s *Store) Journal() *Journal { return &Journal{s: s} }

// RecordTrade appends one accepted order.
func (j *Journal) RecordTrade(ctx context.Context, rec model.TradeRecord) error {
	_, err := j.s.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, instrument, symbol, side, quantity, price, profit, reason, traded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID,
		rec.Instrument,
		rec.Symbol,
		string(rec.Side),
		rec.Quantity.String(),
		rec.Price.String(),
		rec.Profit.String(),
		rec.Reason,
		toNanos(rec.Time),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade %s: %w", rec.OrderID, err)
	}
	return nil
}

// Trades returns the last limit trades, newest first.
func (j *Journal) Trades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	rows, err := j.s.db.QueryContext(ctx,
		`SELECT order_id, instrument, symbol, side, quantity, price, profit, reason, traded_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var (
			t                    model.TradeRecord
			side, qty, price, pr string
			tradedAt             int64
		)
		if err := rows.Scan(&t.OrderID, &t.Instrument, &t.Symbol, &side, &qty, &price, &pr,
			&t.Reason, &tradedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.Quantity, _ = decimal.NewFromString(qty)
		t.Price, _ = decimal.NewFromString(price)
		t.Profit, _ = decimal.NewFromString(pr)
		t.Time = fromNanos(tradedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RealizedProfit sums the profit column of all sells.
func (j *Journal) RealizedProfit(ctx context.Context) (decimal.Decimal, error) {
	rows, err := j.s.db.QueryContext(ctx, `SELECT profit FROM trades WHERE side = ?`, string(model.SideSell))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlite query profit: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return decimal.Zero, fmt.Errorf("sqlite scan profit: %w", err)
		}
		v, err := decimal.NewFromString(p)
		if err != nil {
			continue
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}
