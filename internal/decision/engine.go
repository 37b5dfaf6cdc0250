package decision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/forecast"
	"github.com/selivandex/trader-core/internal/regime"
	"github.com/selivandex/trader-core/internal/risk"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

// Action is the outcome of one decision cycle
type Action string

const (
	ActionBuy          Action = "BUY"
	ActionHold         Action = "HOLD"
	ActionHalt         Action = "HALT"
	ActionCannotDecide Action = "CANNOT_DECIDE"
)

// Request carries the inputs of one decision cycle
type Request struct {
	Symbol         string
	Series         models.Series
	Horizon        int
	VIX            *float64
	PortfolioValue float64
	// OrderValue is the unscaled order size. Zero asks the position sizer for one.
	OrderValue   float64
	Fundamentals *models.Fundamentals
}

// Decision is always a labeled result
type Decision struct {
	Symbol     string                 `json:"symbol"`
	Action     Action                 `json:"action"`
	Reason     string                 `json:"reason"`
	Regime     regime.Label           `json:"regime,omitempty"`
	Params     *regime.RiskParameters `json:"params,omitempty"`
	Forecast   *forecast.Consensus    `json:"forecast,omitempty"`
	OrderValue float64                `json:"order_value,omitempty"`
	Position   *risk.PositionSize     `json:"position,omitempty"`
	BlackSwan  bool                   `json:"black_swan,omitempty"`
	DecidedAt  time.Time              `json:"decided_at"`
	DurationMs int64                  `json:"duration_ms"`
}

// Engine wires regime, forecast and risk components into one decision
type Engine struct {
	classifier *regime.Classifier
	policy     *regime.PolicyTable
	ensemble   *forecast.Ensemble
	guard      *risk.Guard
	sizer      *risk.PositionSizer
}

// NewEngine creates new decision engine. sizer may be nil when requests carry order values.
func NewEngine(
	classifier *regime.Classifier,
	policy *regime.PolicyTable,
	ensemble *forecast.Ensemble,
	guard *risk.Guard,
	sizer *risk.PositionSizer,
) *Engine {
	return &Engine{
		classifier: classifier,
		policy:     policy,
		ensemble:   ensemble,
		guard:      guard,
		sizer:      sizer,
	}
}

// Decide runs one decision cycle
func (e *Engine) Decide(ctx context.Context, req Request) Decision {
	start := time.Now()
	d := e.decide(ctx, req)
	d.DecidedAt = start
	d.DurationMs = time.Since(start).Milliseconds()
	return d
}

func (e *Engine) decide(ctx context.Context, req Request) Decision {
	d := Decision{Symbol: req.Symbol}

	// Step 1: Risk guard
	halt, reason, err := e.guard.ShouldHaltTrading(ctx, req.PortfolioValue, req.VIX)
	if err != nil {
		logger.Error("risk guard unavailable", zap.String("symbol", req.Symbol), zap.Error(err))
		return d.finish(ActionCannotDecide, fmt.Sprintf("%s: %v", reason, err))
	}
	if halt {
		return d.finish(ActionHalt, reason)
	}

	if err := req.Series.Validate(); err != nil {
		return d.finish(ActionCannotDecide, fmt.Sprintf("invalid series: %v", err))
	}

	d.BlackSwan = e.guard.DetectBlackSwan(req.Series)

	// Step 2: Regime and its risk profile
	assessment := e.classifier.Explain(req.Series, req.VIX)
	params := e.policy.Lookup(assessment.Label)
	d.Regime = assessment.Label
	d.Params = &params

	logger.Info("market regime classified",
		zap.String("symbol", req.Symbol),
		zap.String("regime", string(assessment.Label)),
		zap.String("strategy", params.Strategy),
		zap.String("reason", assessment.Reason),
	)

	if !params.Tradable() {
		return d.finish(ActionHold, fmt.Sprintf("regime %s does not allow new positions", assessment.Label))
	}

	// Step 3: Forecast
	consensus, err := e.ensemble.Forecast(ctx, req.Series, req.Horizon, req.Fundamentals)
	if err != nil {
		logger.Warn("forecast unavailable", zap.String("symbol", req.Symbol), zap.Error(err))
		return d.finish(ActionCannotDecide, fmt.Sprintf("forecast unavailable: %v", err))
	}
	d.Forecast = consensus

	// Step 4: Direction
	if consensus.Trend != models.TrendUp {
		return d.finish(ActionHold, fmt.Sprintf("forecast trend %s (%+.2f%%)", consensus.Trend, consensus.ChangePct))
	}

	// Step 5: Size and validate order
	orderValue := req.OrderValue * params.PositionSizeMult
	if e.sizer != nil {
		position, err := e.sizer.Calculate(req.PortfolioValue, consensus.CurrentPrice,
			params.PositionSizeMult, params.StopLossPct, params.TakeProfitPct)
		if err != nil {
			return d.finish(ActionCannotDecide, fmt.Sprintf("position sizing failed: %v", err))
		}
		if req.OrderValue <= 0 {
			orderValue = position.Value
		}
		d.Position = position
	}
	d.OrderValue = orderValue

	if orderValue <= 0 {
		return d.finish(ActionHold, "no order value")
	}

	ok, reason := e.guard.ValidateOrder(ctx, orderValue, req.PortfolioValue)
	if !ok {
		return d.finish(ActionHold, reason)
	}

	return d.finish(ActionBuy, fmt.Sprintf("%s regime, forecast %+.2f%% over %d days",
		assessment.Label, consensus.ChangePct, req.Horizon))
}

func (d Decision) finish(action Action, reason string) Decision {
	d.Action = action
	d.Reason = reason

	logger.Info("decision made",
		zap.String("symbol", d.Symbol),
		zap.String("action", string(action)),
		zap.String("reason", reason),
	)
	return d
}
