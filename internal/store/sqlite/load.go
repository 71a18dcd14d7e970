package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/indicator"
	"cryptoagent/internal/model"
	"cryptoagent/internal/store"
)

// Load reads the stored state. Returns (nil, nil) when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (*store.State, error) {
	meta, err := s.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := meta["version"]; !ok {
		return nil, nil
	}

	st := &store.State{}
	if st.Version, err = strconv.Atoi(meta["version"]); err != nil {
		return nil, fmt.Errorf("sqlite meta version: %w", err)
	}
	savedAt, err := strconv.ParseInt(meta["saved_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("sqlite meta saved_at: %w", err)
	}
	st.SavedAt = fromNanos(savedAt)

	if st.Lots, err = s.readLots(ctx); err != nil {
		return nil, err
	}
	if st.Realized, err = s.readRealized(ctx); err != nil {
		return nil, err
	}
	if meta["has_series"] == "true" {
		if st.Series, err = s.readSeries(ctx); err != nil {
			return nil, err
		}
		if st.Series.Version, err = strconv.Atoi(meta["series_version"]); err != nil {
			return nil, fmt.Errorf("sqlite meta series_version: %w", err)
		}
	}
	return st, nil
}

func (s *Store) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlite scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (s *Store) readLots(ctx context.Context) ([]model.Lot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, instrument, quantity, entry_price, entry_time, status, sell_order_id, exit_price, sold_at
		FROM lots
		ORDER BY instrument, entry_time, order_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var (
			l                   model.Lot
			qty, entry, exit    string
			status              string
			entryTime, soldAtNs int64
		)
		if err := rows.Scan(&l.OrderID, &l.Instrument, &qty, &entry, &entryTime, &status,
			&l.SellOrderID, &exit, &soldAtNs); err != nil {
			return nil, fmt.Errorf("sqlite scan lot: %w", err)
		}
		if l.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("lot %s quantity: %w", l.OrderID, err)
		}
		if l.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("lot %s entry price: %w", l.OrderID, err)
		}
		if l.ExitPrice, err = decimal.NewFromString(exit); err != nil {
			return nil, fmt.Errorf("lot %s exit price: %w", l.OrderID, err)
		}
		l.Status = model.LotStatus(status)
		l.EntryTime = fromNanos(entryTime)
		l.SoldAt = fromNanos(soldAtNs)
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (s *Store) readRealized(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instrument, profit FROM realized`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query realized: %w", err)
	}
	defer rows.Close()

	var out map[string]decimal.Decimal
	for rows.Next() {
		var inst, profit string
		if err := rows.Scan(&inst, &profit); err != nil {
			return nil, fmt.Errorf("sqlite scan realized: %w", err)
		}
		v, err := decimal.NewFromString(profit)
		if err != nil {
			return nil, fmt.Errorf("realized %s: %w", inst, err)
		}
		if out == nil {
			out = make(map[string]decimal.Decimal)
		}
		out[inst] = v
	}
	return out, rows.Err()
}

func (s *Store) readSeries(ctx context.Context) (*indicator.EngineSnapshot, error) {
	snap := &indicator.EngineSnapshot{}
	byName := make(map[string]int)

	rows, err := s.db.QueryContext(ctx, `SELECT instrument, data FROM indicator_state ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query indicator_state: %w", err)
	}
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite scan indicator_state: %w", err)
		}
		is := indicator.InstrumentSnapshot{Instrument: name}
		if err := json.Unmarshal([]byte(data), &is.Indicators); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unmarshal indicator state %s: %w", name, err)
		}
		byName[name] = len(snap.Instruments)
		snap.Instruments = append(snap.Instruments, is)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Results are ordered by timestamp ascending for correct replay order.
	rows, err = s.db.QueryContext(ctx, `
		SELECT instrument, ts, price, sma_fast, sma_slow, rsi, macd, macd_signal
		FROM samples
		ORDER BY instrument, ts ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name                         string
			ts                           int64
			smp                          model.Sample
			fast, slow, rsi, macd, macdS sql.NullFloat64
		)
		if err := rows.Scan(&name, &ts, &smp.Price, &fast, &slow, &rsi, &macd, &macdS); err != nil {
			return nil, fmt.Errorf("sqlite scan sample: %w", err)
		}
		smp.Time = fromNanos(ts)
		smp.Indicators = model.Indicators{
			SMAFast:    orNaN(fast),
			SMASlow:    orNaN(slow),
			RSI:        orNaN(rsi),
			MACD:       orNaN(macd),
			MACDSignal: orNaN(macdS),
		}
		idx, ok := byName[name]
		if !ok {
			idx = len(snap.Instruments)
			byName[name] = idx
			snap.Instruments = append(snap.Instruments, indicator.InstrumentSnapshot{Instrument: name})
		}
		snap.Instruments[idx].Samples = append(snap.Instruments[idx].Samples, smp)
	}
	return snap, rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
