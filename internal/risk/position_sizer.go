package risk

import (
	"fmt"
	"math"
)

// PositionSizer turns a regime's exposure profile into a concrete order
type PositionSizer struct {
	maxPositionPct float64
}

// NewPositionSizer creates new position sizer capped at maxPositionPct of portfolio
func NewPositionSizer(maxPositionPct float64) *PositionSizer {
	return &PositionSizer{maxPositionPct: maxPositionPct}
}

// PositionSize represents calculated long position parameters
type PositionSize struct {
	Units         float64 `json:"units"`          // Quantity at entry price
	Value         float64 `json:"value"`          // Order value
	StopLoss      float64 `json:"stop_loss"`      // Stop loss price
	TakeProfit    float64 `json:"take_profit"`    // Take profit price
	PotentialLoss float64 `json:"potential_loss"` // Loss if stop loss hits
	RiskReward    float64 `json:"risk_reward"`
}

// Calculate sizes a long entry: the position cap scaled by sizeMult,
// with stop and target as fractions of entry price.
func (ps *PositionSizer) Calculate(portfolioValue, price, sizeMult, stopLossPct, takeProfitPct float64) (*PositionSize, error) {
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("invalid portfolio value: %.2f", portfolioValue)
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price: %.2f", price)
	}
	if sizeMult < 0 || sizeMult > 1 {
		return nil, fmt.Errorf("invalid size multiplier: %.2f", sizeMult)
	}

	value := portfolioValue * ps.maxPositionPct / 100 * sizeMult
	units := value / price
	stopLoss := price * (1 - stopLossPct)
	takeProfit := price * (1 + takeProfitPct)

	riskReward := 0.0
	if stopLossPct > 0 {
		riskReward = takeProfitPct / stopLossPct
	}

	return &PositionSize{
		Units:         units,
		Value:         value,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		PotentialLoss: math.Abs(price-stopLoss) * units,
		RiskReward:    riskReward,
	}, nil
}
