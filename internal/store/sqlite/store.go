// Package sqlite persists agent state and the trade journal in a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cryptoagent/internal/indicator"
	"cryptoagent/internal/model"
	"cryptoagent/internal/store"
)

// Store is a single-connection SQLite store. It implements store.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database at path with WAL mode and the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	logger = logger.With("component", "sqlite")
	logger.Info("opened database", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS lots (
			order_id      TEXT    PRIMARY KEY,
			instrument    TEXT    NOT NULL,
			quantity      TEXT    NOT NULL,
			entry_price   TEXT    NOT NULL,
			entry_time    INTEGER NOT NULL,
			status        TEXT    NOT NULL,
			sell_order_id TEXT    NOT NULL DEFAULT '',
			exit_price    TEXT    NOT NULL DEFAULT '0',
			sold_at       INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS samples (
			instrument  TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			price       REAL    NOT NULL,
			sma_fast    REAL,
			sma_slow    REAL,
			rsi         REAL,
			macd        REAL,
			macd_signal REAL,
			PRIMARY KEY (instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_state (
			instrument TEXT PRIMARY KEY,
			data       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS realized (
			instrument TEXT PRIMARY KEY,
			profit     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id    TEXT    NOT NULL,
			instrument  TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			quantity    TEXT    NOT NULL,
			price       TEXT    NOT NULL,
			profit      TEXT    NOT NULL DEFAULT '0',
			reason      TEXT,
			traded_at   INTEGER NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument);
		CREATE INDEX IF NOT EXISTS idx_trades_traded_at ON trades(traded_at);
	`)
	return err
}

// toNanos maps the zero time to 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullFloat(v float64) sql.NullFloat64 {
	if !model.Defined(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Save replaces the stored state in a single transaction. Samples are written
// incrementally: only those newer than the stored tail are inserted and rows
// that fell out of the window are trimmed.
func (s *Store) Save(ctx context.Context, st *store.State) error {
	if st == nil {
		return fmt.Errorf("sqlite save: nil state")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := s.saveTx(ctx, tx, st); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

func (s *Store) saveTx(ctx context.Context, tx *sql.Tx, st *store.State) error {
	for _, table := range []string{"lots", "indicator_state", "realized"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite clear %s: %w", table, err)
		}
	}

	lotStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lots (order_id, instrument, quantity, entry_price, entry_time, status, sell_order_id, exit_price, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare lots: %w", err)
	}
	defer lotStmt.Close()

	for _, l := range st.Lots {
		_, err := lotStmt.ExecContext(ctx, l.OrderID, l.Instrument, l.Quantity.String(), l.EntryPrice.String(),
			toNanos(l.EntryTime), string(l.Status), l.SellOrderID, l.ExitPrice.String(), toNanos(l.SoldAt))
		if err != nil {
			return fmt.Errorf("sqlite insert lot %s: %w", l.OrderID, err)
		}
	}

	for inst, profit := range st.Realized {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO realized (instrument, profit) VALUES (?, ?)`, inst, profit.String()); err != nil {
			return fmt.Errorf("sqlite insert realized %s: %w", inst, err)
		}
	}

	seriesVersion := 0
	if st.Series != nil {
		seriesVersion = st.Series.Version
	}
	if err := s.saveSeries(ctx, tx, st.Series); err != nil {
		return err
	}

	meta := map[string]string{
		"version":        strconv.Itoa(st.Version),
		"saved_at":       strconv.FormatInt(toNanos(st.SavedAt), 10),
		"series_version": strconv.Itoa(seriesVersion),
		"has_series":     strconv.FormatBool(st.Series != nil),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("sqlite meta %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) saveSeries(ctx context.Context, tx *sql.Tx, snap *indicator.EngineSnapshot) error {
	var instruments []indicator.InstrumentSnapshot
	if snap != nil {
		instruments = snap.Instruments
	}
	if err := dropOtherInstruments(ctx, tx, instruments); err != nil {
		return err
	}

	sampleStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (instrument, ts, price, sma_fast, sma_slow, rsi, macd, macd_signal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare samples: %w", err)
	}
	defer sampleStmt.Close()

	for _, inst := range instruments {
		tail, err := trimSamples(ctx, tx, inst)
		if err != nil {
			return err
		}
		for _, smp := range inst.Samples {
			ts := smp.Time.UnixNano()
			if tail.Valid && ts <= tail.Int64 {
				continue
			}
			ind := smp.Indicators
			_, err := sampleStmt.ExecContext(ctx, inst.Instrument, ts, smp.Price,
				nullFloat(ind.SMAFast), nullFloat(ind.SMASlow), nullFloat(ind.RSI),
				nullFloat(ind.MACD), nullFloat(ind.MACDSignal))
			if err != nil {
				return fmt.Errorf("sqlite insert sample %s: %w", inst.Instrument, err)
			}
		}

		data, err := json.Marshal(inst.Indicators)
		if err != nil {
			return fmt.Errorf("marshal indicator state %s: %w", inst.Instrument, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO indicator_state (instrument, data) VALUES (?, ?)`, inst.Instrument, string(data)); err != nil {
			return fmt.Errorf("sqlite insert indicator state %s: %w", inst.Instrument, err)
		}
	}
	return nil
}

// dropOtherInstruments deletes the samples of instruments no longer tracked.
func dropOtherInstruments(ctx context.Context, tx *sql.Tx, keep []indicator.InstrumentSnapshot) error {
	query := "DELETE FROM samples"
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += " WHERE instrument NOT IN (?" + strings.Repeat(", ?", len(keep)-1) + ")"
		for _, inst := range keep {
			args = append(args, inst.Instrument)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite drop samples: %w", err)
	}
	return nil
}

// trimSamples deletes stored rows outside the snapshot's time window and
// returns the newest remaining timestamp.
func trimSamples(ctx context.Context, tx *sql.Tx, inst indicator.InstrumentSnapshot) (sql.NullInt64, error) {
	var tail sql.NullInt64
	if len(inst.Samples) == 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE instrument = ?`, inst.Instrument)
		if err != nil {
			return tail, fmt.Errorf("sqlite trim samples %s: %w", inst.Instrument, err)
		}
		return tail, nil
	}
	first := inst.Samples[0].Time.UnixNano()
	last := inst.Samples[len(inst.Samples)-1].Time.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM samples WHERE instrument = ? AND (ts < ? OR ts > ?)`, inst.Instrument, first, last); err != nil {
		return tail, fmt.Errorf("sqlite trim samples %s: %w", inst.Instrument, err)
	}
	err := tx.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM samples WHERE instrument = ?`, inst.Instrument).Scan(&tail)
	if err != nil {
		return tail, fmt.Errorf("sqlite samples tail %s: %w", inst.Instrument, err)
	}
	return tail, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
