package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/trader-core/pkg/models"
)

// Calculator calculates technical indicators from candle data
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// SMA calculates Simple Moving Average of closes over the last period bars
func (c *Calculator) SMA(series models.Series, period int) (float64, error) {
	return SMA(series.Closes(), period)
}

// SMA calculates Simple Moving Average of values over the last period entries
func SMA(values []float64, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("invalid SMA period %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("insufficient data for SMA(%d): got %d", period, len(values))
	}

	sma := indicator.Sma(period, values)
	if len(sma) == 0 {
		return 0, fmt.Errorf("SMA calculation failed")
	}
	return sma[len(sma)-1], nil
}

// EMASeries calculates the full Exponential Moving Average series
func EMASeries(values []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("insufficient data for EMA(%d): got %d", period, len(values))
	}
	return indicator.Ema(period, values), nil
}

// ATR calculates Average True Range for the last bar
func (c *Calculator) ATR(series models.Series, period int) (float64, error) {
	if len(series) < period+1 {
		return 0, fmt.Errorf("insufficient candles for ATR(%d): got %d", period, len(series))
	}

	_, atr := indicator.Atr(period, series.Highs(), series.Lows(), series.Closes())
	if len(atr) == 0 {
		return 0, fmt.Errorf("ATR returned no data")
	}
	return atr[len(atr)-1], nil
}

// ADX calculates Wilder's Average Directional Index for the last bar.
// Needs at least 2*period+1 candles. A series with no range at all yields 0.
func (c *Calculator) ADX(series models.Series, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("invalid ADX period %d", period)
	}
	if len(series) < 2*period+1 {
		return 0, fmt.Errorf("insufficient candles for ADX(%d): need %d, got %d", period, 2*period+1, len(series))
	}

	highs := series.Highs()
	lows := series.Lows()
	closes := series.Closes()
	n := float64(period)

	var trS, plusS, minusS float64
	var dxSum, adx float64
	dxCount := 0

	for i := 1; i < len(series); i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		if i <= period {
			// Seed smoothed sums with the first period values
			trS += tr
			plusS += plusDM
			minusS += minusDM
			if i < period {
				continue
			}
		} else {
			trS = trS - trS/n + tr
			plusS = plusS - plusS/n + plusDM
			minusS = minusS - minusS/n + minusDM
		}

		dx := directionalIndex(trS, plusS, minusS)

		switch {
		case dxCount < period:
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / n
			}
		default:
			adx = (adx*(n-1) + dx) / n
		}
	}

	return adx, nil
}

func directionalIndex(trS, plusS, minusS float64) float64 {
	if trS <= 0 {
		return 0
	}
	plusDI := 100 * plusS / trS
	minusDI := 100 * minusS / trS
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}

// Returns calculates simple bar-to-bar returns
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// ReturnVolatility calculates sample standard deviation of returns over the last window bars
func ReturnVolatility(values []float64, window int) (float64, error) {
	if window < 2 {
		return 0, fmt.Errorf("invalid volatility window %d", window)
	}
	if len(values) < window+1 {
		return 0, fmt.Errorf("insufficient data for volatility(%d): got %d", window, len(values))
	}

	returns := Returns(values[len(values)-window-1:])
	return stat.StdDev(returns, nil), nil
}
