package regime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompletePolicy is returned when a policy table lacks an entry for some label
var ErrIncompletePolicy = errors.New("risk policy table incomplete")

// RiskParameters represents per-regime trading limits.
// Percentages are fractions of entry price (0.05 = 5%).
type RiskParameters struct {
	Label            Label   `json:"label"`
	StopLossPct      float64 `json:"stop_loss_pct"`
	TakeProfitPct    float64 `json:"take_profit_pct"`
	PositionSizeMult float64 `json:"position_size_mult"`
	Strategy         string  `json:"strategy"`
}

// Tradable reports whether the regime allows opening positions
func (p RiskParameters) Tradable() bool {
	return p.PositionSizeMult > 0
}

// StopLossPrice returns stop price for a long entry
func (p RiskParameters) StopLossPrice(entry float64) float64 {
	return entry * (1 - p.StopLossPct)
}

// TakeProfitPrice returns target price for a long entry
func (p RiskParameters) TakeProfitPrice(entry float64) float64 {
	return entry * (1 + p.TakeProfitPct)
}

// PolicyTable maps every regime label to its risk parameters
type PolicyTable struct {
	entries map[Label]RiskParameters
}

// NewPolicyTable validates and copies entries. Every label must be present.
func NewPolicyTable(entries map[Label]RiskParameters) (*PolicyTable, error) {
	var missing []string
	for _, label := range AllLabels() {
		if _, ok := entries[label]; !ok {
			missing = append(missing, string(label))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompletePolicy, strings.Join(missing, ", "))
	}

	table := &PolicyTable{entries: make(map[Label]RiskParameters, len(entries))}
	for label, params := range entries {
		if params.PositionSizeMult < 0 || params.PositionSizeMult > 1 {
			return nil, fmt.Errorf("policy %s: position_size_mult %.2f outside [0,1]", label, params.PositionSizeMult)
		}
		if params.StopLossPct < 0 || params.TakeProfitPct < 0 {
			return nil, fmt.Errorf("policy %s: stop loss and take profit must not be negative", label)
		}
		params.Label = label
		table.entries[label] = params
	}

	return table, nil
}

// DefaultPolicyTable returns the built-in regime policy
func DefaultPolicyTable() *PolicyTable {
	table, err := NewPolicyTable(map[Label]RiskParameters{
		Bull: {
			StopLossPct:      0.05,
			TakeProfitPct:    0.15,
			PositionSizeMult: 1.0,
			Strategy:         "trend_following",
		},
		Bear: {
			StopLossPct:      0.02,
			TakeProfitPct:    0.06,
			PositionSizeMult: 0.5,
			Strategy:         "defensive",
		},
		Sideways: {
			StopLossPct:      0.02,
			TakeProfitPct:    0.04,
			PositionSizeMult: 0.7,
			Strategy:         "mean_reversion",
		},
		Volatile: {
			StopLossPct:      0.07,
			TakeProfitPct:    0.20,
			PositionSizeMult: 0.3,
			Strategy:         "volatility_breakout",
		},
		Uncertain: {
			StopLossPct:      0,
			TakeProfitPct:    0,
			PositionSizeMult: 0,
			Strategy:         "stand_aside",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("built-in policy table invalid: %v", err))
	}
	return table
}

// Lookup returns parameters for label. Unknown labels get the do-not-trade profile.
func (t *PolicyTable) Lookup(label Label) RiskParameters {
	if params, ok := t.entries[label]; ok {
		return params
	}
	return t.entries[Uncertain]
}
