package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/trader-core/internal/indicators"
	"github.com/selivandex/trader-core/pkg/models"
)

// Forecaster predicts a price path from history.
// Insufficient data is reported as a Failure result, never a panic.
type Forecaster interface {
	// Name returns model name for weights and diagnostics
	Name() string
	// Forecast predicts closes for the next horizon bars
	Forecast(ctx context.Context, series models.Series, horizon int) Result
}

// Momentum extends the mean of recent returns, clipped to ±3% per bar
type Momentum struct {
	Lookback int
	MaxStep  float64
}

// NewMomentum creates momentum forecaster with 5-bar lookback
func NewMomentum() *Momentum {
	return &Momentum{Lookback: 5, MaxStep: 0.03}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	if len(series) < m.Lookback+1 {
		return Failure(m.Name(), fmt.Sprintf("insufficient data: %d bars, need %d", len(series), m.Lookback+1))
	}

	closes := series.Closes()
	returns := indicators.Returns(closes[len(closes)-m.Lookback-1:])
	step := clamp(stat.Mean(returns, nil), -m.MaxStep, m.MaxStep)

	current := closes[len(closes)-1]
	predicted := make([]float64, horizon)
	price := current
	for i := range predicted {
		price *= 1 + step
		predicted[i] = price
	}

	return Success(NewOutput(m.Name(), current, predicted))
}

// LinearTrend projects a least-squares line fitted to recent closes
type LinearTrend struct {
	Window int
}

// NewLinearTrend creates regression forecaster over 60 bars
func NewLinearTrend() *LinearTrend {
	return &LinearTrend{Window: 60}
}

func (l *LinearTrend) Name() string { return "linear_trend" }

func (l *LinearTrend) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	if len(series) < l.Window {
		return Failure(l.Name(), fmt.Sprintf("insufficient data: %d bars, need %d", len(series), l.Window))
	}

	closes := series.Closes()
	window := closes[len(closes)-l.Window:]
	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(xs, window, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return Failure(l.Name(), "regression did not converge")
	}

	current := closes[len(closes)-1]
	// Anchor the slope on the last observed close instead of the fitted line
	fittedLast := alpha + beta*float64(len(window)-1)
	predicted := make([]float64, horizon)
	for i := range predicted {
		p := current + (alpha+beta*float64(len(window)+i)-fittedLast)
		if p <= 0 {
			return Failure(l.Name(), "projection crossed zero")
		}
		predicted[i] = p
	}

	return Success(NewOutput(l.Name(), current, predicted))
}

// EMADrift compounds the per-bar drift between a fast and a slow EMA
type EMADrift struct {
	Fast int
	Slow int
}

// NewEMADrift creates EMA(12)/EMA(26) drift forecaster
func NewEMADrift() *EMADrift {
	return &EMADrift{Fast: 12, Slow: 26}
}

func (e *EMADrift) Name() string { return "ema_drift" }

func (e *EMADrift) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	if len(series) < e.Slow*2 {
		return Failure(e.Name(), fmt.Sprintf("insufficient data: %d bars, need %d", len(series), e.Slow*2))
	}

	closes := series.Closes()
	fast, err := indicators.EMASeries(closes, e.Fast)
	if err != nil {
		return Failure(e.Name(), err.Error())
	}
	slow, err := indicators.EMASeries(closes, e.Slow)
	if err != nil {
		return Failure(e.Name(), err.Error())
	}

	f, s := fast[len(fast)-1], slow[len(slow)-1]
	if s <= 0 {
		return Failure(e.Name(), "non-positive slow EMA")
	}

	// Gap between EMAs spread over the lag difference approximates per-bar drift
	lag := float64(e.Slow-e.Fast) / 2
	step := clamp((f/s-1)/lag, -0.03, 0.03)

	current := closes[len(closes)-1]
	predicted := make([]float64, horizon)
	price := current
	for i := range predicted {
		price *= 1 + step
		predicted[i] = price
	}

	return Success(NewOutput(e.Name(), current, predicted))
}

// MeanReversion decays the gap between price and its SMA
type MeanReversion struct {
	Window   int
	HalfLife float64
}

// NewMeanReversion creates SMA(20) reversion forecaster with 5-bar half-life
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{Window: 20, HalfLife: 5}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	closes := series.Closes()
	mean, err := indicators.SMA(closes, m.Window)
	if err != nil {
		return Failure(m.Name(), err.Error())
	}

	current := closes[len(closes)-1]
	decay := math.Pow(0.5, 1/m.HalfLife)
	predicted := make([]float64, horizon)
	gap := current - mean
	for i := range predicted {
		gap *= decay
		predicted[i] = mean + gap
	}

	return Success(NewOutput(m.Name(), current, predicted))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
