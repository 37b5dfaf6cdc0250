package risk

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/pkg/logger"
)

// CheckDailyLossLimit resets the breaker on a new calendar day, then trips it
// when the loss from the day's starting value reaches the limit.
// Returns the breaker state; a tripped breaker keeps reporting true until the date changes.
func (g *Guard) CheckDailyLossLimit(ctx context.Context, portfolioValue float64) (bool, error) {
	if !validValue(portfolioValue) {
		return true, fmt.Errorf("invalid portfolio value %v", portfolioValue)
	}

	var reset, tripped bool
	var lossPct float64
	today := g.today()

	halt, err := g.mutate(ctx, func(s *State) bool {
		if today > s.LastResetDate {
			reset = s.CircuitBreakerTriggered
			s.LastResetDate = today
			s.CircuitBreakerTriggered = false
			s.DailyStartValue = portfolioValue
		}

		if s.DailyStartValue > 0 {
			lossPct = (portfolioValue - s.DailyStartValue) / s.DailyStartValue * 100
			if lossPct <= g.cfg.DailyLossLimitPct && !s.CircuitBreakerTriggered {
				s.CircuitBreakerTriggered = true
				tripped = true
			}
		}

		return s.CircuitBreakerTriggered
	})

	if reset {
		logger.Info("circuit breaker: daily reset",
			zap.String("guard", g.guardID),
			zap.String("date", today),
			zap.Float64("daily_start_value", portfolioValue),
		)
		g.record(ctx, EventCircuitBreakerReset, "calendar date rollover", map[string]interface{}{
			"date":              today,
			"daily_start_value": portfolioValue,
		})
	}

	if tripped {
		reason := fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", lossPct, g.cfg.DailyLossLimitPct)
		logger.Error("CIRCUIT BREAKER TRIPPED",
			zap.String("guard", g.guardID),
			zap.String("reason", reason),
			zap.Float64("portfolio_value", portfolioValue),
			zap.Bool("persisted", err == nil),
		)
		g.record(ctx, EventCircuitBreakerTripped, reason, map[string]interface{}{
			"portfolio_value": portfolioValue,
			"loss_pct":        lossPct,
			"limit_pct":       g.cfg.DailyLossLimitPct,
		})
	}

	return halt, err
}

// CheckDrawdownLimit ratchets the high-water mark and trips the terminal
// drawdown halt when value falls further below it than the limit allows.
func (g *Guard) CheckDrawdownLimit(ctx context.Context, portfolioValue float64) (bool, error) {
	if !validValue(portfolioValue) {
		return true, fmt.Errorf("invalid portfolio value %v", portfolioValue)
	}

	var tripped bool
	var drawdownPct, hwm float64
	limit := math.Abs(g.cfg.MaxDrawdownLimitPct)

	halt, err := g.mutate(ctx, func(s *State) bool {
		if portfolioValue > s.HighWaterMark {
			s.HighWaterMark = portfolioValue
		}
		hwm = s.HighWaterMark

		if s.HighWaterMark > 0 {
			drawdownPct = (s.HighWaterMark - portfolioValue) / s.HighWaterMark * 100
			if drawdownPct > limit && !s.DrawdownTriggered {
				s.DrawdownTriggered = true
				tripped = true
			}
		}

		return s.DrawdownTriggered
	})

	if tripped {
		reason := fmt.Sprintf("drawdown %.2f%% from high-water mark %.2f exceeds %.2f%%", drawdownPct, hwm, limit)
		logger.Error("DRAWDOWN HALT",
			zap.String("guard", g.guardID),
			zap.String("reason", reason),
			zap.Float64("portfolio_value", portfolioValue),
			zap.Bool("persisted", err == nil),
		)
		g.record(ctx, EventDrawdownHalt, reason, map[string]interface{}{
			"portfolio_value": portfolioValue,
			"high_water_mark": hwm,
			"drawdown_pct":    drawdownPct,
			"limit_pct":       limit,
		})
	}

	return halt, err
}
