package risk

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/trader-core/internal/indicators"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

const (
	minStopLossPct = 0.02
	maxStopLossPct = 0.07

	blackSwanRecentWindow   = 10
	blackSwanBaselineWindow = 60
)

// DynamicStopLoss widens the stop with volatility: twice the volatility, kept within 2%..7%
func DynamicStopLoss(volatility float64) float64 {
	return clamp(volatility*2, minStopLossPct, maxStopLossPct)
}

// DetectBlackSwan flags a sudden volatility expansion: stddev of the latest
// returns above BlackSwanSigma times the stddev of the preceding 60 returns.
func (g *Guard) DetectBlackSwan(series models.Series) bool {
	returns := indicators.Returns(series.Closes())
	if len(returns) < blackSwanRecentWindow+blackSwanBaselineWindow {
		return false
	}

	recent := returns[len(returns)-blackSwanRecentWindow:]
	baseline := returns[len(returns)-blackSwanRecentWindow-blackSwanBaselineWindow : len(returns)-blackSwanRecentWindow]

	recentVol := stat.StdDev(recent, nil)
	baselineVol := stat.StdDev(baseline, nil)
	if baselineVol == 0 {
		return recentVol > 0
	}

	if recentVol > baselineVol*g.cfg.BlackSwanSigma {
		logger.Error("BLACK SWAN WARNING: volatility expansion detected",
			zap.String("guard", g.guardID),
			zap.Float64("recent_vol", recentVol),
			zap.Float64("baseline_vol", baselineVol),
			zap.Float64("sigma", g.cfg.BlackSwanSigma),
		)
		return true
	}
	return false
}
