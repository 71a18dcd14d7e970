package model

import (
	"encoding/json"
	"math"
	"time"
)

// Sample is one row of an instrument's price series.
// Indicator values are NaN until their accumulation window is full.
type Sample struct {
	Time       time.Time  `json:"time"`
	Price      float64    `json:"price"`
	Indicators Indicators `json:"indicators"`
}

// Indicators holds the derived values computed when a sample is appended.
type Indicators struct {
	SMAFast    float64 `json:"sma_fast"`
	SMASlow    float64 `json:"sma_slow"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
}

// UndefinedIndicators returns an Indicators value with every field set to NaN.
func UndefinedIndicators() Indicators {
	nan := math.NaN()
	return Indicators{SMAFast: nan, SMASlow: nan, RSI: nan, MACD: nan, MACDSignal: nan}
}

// Defined reports whether all of the given values are usable numbers.
func Defined(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PricePoint is a single historical observation returned by a market-data feed.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// indicatorsJSON mirrors Indicators with nullable fields; encoding/json cannot
// represent NaN, so undefined values travel as null.
type indicatorsJSON struct {
	SMAFast    *float64 `json:"sma_fast"`
	SMASlow    *float64 `json:"sma_slow"`
	RSI        *float64 `json:"rsi"`
	MACD       *float64 `json:"macd"`
	MACDSignal *float64 `json:"macd_signal"`
}

func nullable(v float64) *float64 {
	if !Defined(v) {
		return nil
	}
	return &v
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes undefined values as null.
func (in Indicators) MarshalJSON() ([]byte, error) {
	return json.Marshal(indicatorsJSON{
		SMAFast:    nullable(in.SMAFast),
		SMASlow:    nullable(in.SMASlow),
		RSI:        nullable(in.RSI),
		MACD:       nullable(in.MACD),
		MACDSignal: nullable(in.MACDSignal),
	})
}

// UnmarshalJSON decodes null (or missing) values as NaN.
func (in *Indicators) UnmarshalJSON(data []byte) error {
	var raw indicatorsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in.SMAFast = fromNullable(raw.SMAFast)
	in.SMASlow = fromNullable(raw.SMASlow)
	in.RSI = fromNullable(raw.RSI)
	in.MACD = fromNullable(raw.MACD)
	in.MACDSignal = fromNullable(raw.MACDSignal)
	return nil
}
