package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrStateNotFound means nothing was persisted yet; the guard starts fresh
	ErrStateNotFound = errors.New("risk guard state not found")
	// ErrCorruptState means persisted state exists but cannot be trusted
	ErrCorruptState = errors.New("risk guard state corrupt")
)

// State is the persisted safety state of a guard
type State struct {
	DailyStartValue         float64 `json:"daily_start_value" db:"daily_start_value"`
	LastResetDate           string  `json:"last_reset_date" db:"last_reset_date"`
	CircuitBreakerTriggered bool    `json:"circuit_breaker_triggered" db:"circuit_breaker_triggered"`
	HighWaterMark           float64 `json:"high_water_mark" db:"high_water_mark"`
	DrawdownTriggered       bool    `json:"drawdown_triggered" db:"drawdown_triggered"`
}

// StateStore persists guard state. Save must be durable before it returns.
type StateStore interface {
	// Load returns ErrStateNotFound when nothing was saved yet
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Validate checks loaded values are usable
func (s *State) Validate() error {
	if _, err := time.Parse(time.DateOnly, s.LastResetDate); err != nil {
		return fmt.Errorf("%w: last_reset_date %q: %v", ErrCorruptState, s.LastResetDate, err)
	}
	if !validValue(s.DailyStartValue) {
		return fmt.Errorf("%w: daily_start_value %v", ErrCorruptState, s.DailyStartValue)
	}
	if !validValue(s.HighWaterMark) {
		return fmt.Errorf("%w: high_water_mark %v", ErrCorruptState, s.HighWaterMark)
	}
	return nil
}

func freshState(initial float64, today string) State {
	return State{
		DailyStartValue: initial,
		LastResetDate:   today,
		HighWaterMark:   initial,
	}
}

func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
