package indicator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cryptoagent/internal/model"
)

var (
	// ErrOutOfOrder is returned when a sample is not newer than the last one.
	ErrOutOfOrder = errors.New("indicator: sample timestamp not after last sample")
	// ErrInvalidPrice is returned for NaN, infinite or non-positive prices.
	ErrInvalidPrice = errors.New("indicator: invalid price")
)

// Config specifies the indicator periods and series bounds.
type Config struct {
	SMAFast    int
	SMASlow    int
	RSI        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int

	// MaxRows bounds the series; MaxRows-1 samples are retained.
	MaxRows int

	// StaleRepeatLimit discards a price equal to each of the last N recorded
	// prices. Zero disables the check.
	StaleRepeatLimit int
}

// retention is the number of samples kept per instrument.
func (c Config) retention() int {
	if c.MaxRows <= 1 {
		return 1
	}
	return c.MaxRows - 1
}

// instrumentState holds the series and live indicator instances for one instrument.
type instrumentState struct {
	series  *Series
	smaFast *LaggedSMA
	smaSlow *LaggedSMA
	rsi     *RSI
	macd    *MACD
}

// snapshottables lists the indicators in a fixed order.
func (st *instrumentState) snapshottables() []Snapshottable {
	return []Snapshottable{st.smaFast, st.smaSlow, st.rsi, st.macd}
}

func (st *instrumentState) update(price float64) model.Indicators {
	for _, ind := range st.snapshottables() {
		ind.Update(price)
	}
	return st.current()
}

func (st *instrumentState) current() model.Indicators {
	out := model.UndefinedIndicators()
	if st.smaFast.Ready() {
		out.SMAFast = st.smaFast.Value()
	}
	if st.smaSlow.Ready() {
		out.SMASlow = st.smaSlow.Value()
	}
	if st.rsi.Ready() {
		out.RSI = st.rsi.Value()
	}
	if st.macd.Ready() {
		out.MACD = st.macd.Value()
		out.MACDSignal = st.macd.Signal()
	}
	return out
}

// Engine maintains one series plus indicator set per instrument.
// An Engine is owned by one goroutine and takes no locks.
type Engine struct {
	cfg       Config
	state     map[string]*instrumentState
	discarded uint64
}

// NewEngine creates an indicator engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		state: make(map[string]*instrumentState, 8),
	}
}

func (e *Engine) newState() *instrumentState {
	return &instrumentState{
		series:  NewSeries(e.cfg.retention()),
		smaFast: NewLaggedSMA(e.cfg.SMAFast),
		smaSlow: NewLaggedSMA(e.cfg.SMASlow),
		rsi:     NewRSI(e.cfg.RSI),
		macd:    NewMACD(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal),
	}
}

// Ingest appends a price for instrument and recomputes its indicators.
// The bool is false when the price was discarded as a frozen-feed repeat; in
// that case neither the series nor the indicator state changes.
func (e *Engine) Ingest(instrument string, ts time.Time, price float64) (model.Sample, bool, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return model.Sample{}, false, fmt.Errorf("%w: %s %v", ErrInvalidPrice, instrument, price)
	}

	st, ok := e.state[instrument]
	if !ok {
		st = e.newState()
		e.state[instrument] = st
	}

	if last := st.series.LastTime(); !last.IsZero() && !ts.After(last) {
		return model.Sample{}, false, fmt.Errorf("%w: %s at %s (last %s)",
			ErrOutOfOrder, instrument, ts.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	if st.series.repeats(price, e.cfg.StaleRepeatLimit) {
		e.discarded++
		return model.Sample{Time: ts, Price: price, Indicators: model.UndefinedIndicators()}, false, nil
	}

	sample := model.Sample{Time: ts, Price: price, Indicators: st.update(price)}
	st.series.append(sample)
	return sample, true, nil
}

// View returns a read-only accessor for instrument's series. Unknown
// instruments yield an empty view.
func (e *Engine) View(instrument string) View {
	st, ok := e.state[instrument]
	if !ok {
		return emptyView{}
	}
	return st.series
}

// Instruments lists instruments that have a series, sorted.
func (e *Engine) Instruments() []string {
	out := make([]string, 0, len(e.state))
	for k := range e.state {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Discarded returns how many samples were dropped as frozen-feed repeats.
func (e *Engine) Discarded() uint64 { return e.discarded }
