package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Trend represents direction of a price move
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// TrendDeadbandPct is the move (in percent) a forecast must exceed to count as directional
const TrendDeadbandPct = 1.0

// ClassifyTrend labels the move from current to final price using a 1% deadband
func ClassifyTrend(current, final float64) Trend {
	if current == 0 {
		return TrendFlat
	}
	return TrendFromChangePct((final - current) / current * 100)
}

// TrendFromChangePct labels a percent change; (-1%, 1%) and the edges are FLAT
func TrendFromChangePct(changePct float64) Trend {
	switch {
	case changePct > TrendDeadbandPct:
		return TrendUp
	case changePct < -TrendDeadbandPct:
		return TrendDown
	default:
		return TrendFlat
	}
}

// Candle represents OHLCV candlestick data
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Series is an ordered price history, oldest bar first.
// Components treat it as read-only.
type Series []Candle

// Validate checks ordering and price sanity
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty price series")
	}

	for i, c := range s {
		if !c.Close.IsPositive() {
			return fmt.Errorf("bar %d (%s): non-positive close %s", i, c.Timestamp.Format(time.DateOnly), c.Close)
		}
		if i > 0 && !c.Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("bar %d (%s): timestamps not strictly increasing", i, c.Timestamp.Format(time.DateOnly))
		}
	}

	return nil
}

// Closes returns close prices as float64
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = ToFloat64(c.Close)
	}
	return out
}

// Highs returns high prices as float64
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = ToFloat64(c.High)
	}
	return out
}

// Lows returns low prices as float64
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = ToFloat64(c.Low)
	}
	return out
}

// LastClose returns the most recent close, 0 for an empty series
func (s Series) LastClose() float64 {
	if len(s) == 0 {
		return 0
	}
	return ToFloat64(s[len(s)-1].Close)
}

// Before returns the prefix of bars strictly earlier than t.
// The result shares the backing array; callers must not modify it.
func (s Series) Before(t time.Time) Series {
	idx := sort.Search(len(s), func(i int) bool {
		return !s[i].Timestamp.Before(t)
	})
	return s[:idx:idx]
}

// IndexAtOrAfter returns the index of the first bar at or after t, or len(s)
func (s Series) IndexAtOrAfter(t time.Time) int {
	return sort.Search(len(s), func(i int) bool {
		return !s[i].Timestamp.Before(t)
	})
}

// Fundamentals is an optional fair-value signal supplied alongside prices
type Fundamentals struct {
	Score                float64 `json:"score"`
	ConfidenceMultiplier float64 `json:"confidence_multiplier"`
}
