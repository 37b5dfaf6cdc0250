package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/pkg/logger"
)

// Risk event types written to the event log
const (
	EventCircuitBreakerTripped = "CIRCUIT_BREAKER_TRIPPED"
	EventCircuitBreakerReset   = "CIRCUIT_BREAKER_RESET"
	EventDrawdownHalt          = "DRAWDOWN_HALT"
)

// EventRecorder stores notable guard transitions
type EventRecorder interface {
	LogRiskEvent(ctx context.Context, guardID, eventType, description string, data map[string]interface{}) error
}

// Locker serializes state mutations across processes sharing one store
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Guard enforces daily loss and drawdown limits with persistent state
type Guard struct {
	mu      sync.Mutex
	cfg     config.RiskConfig
	loc     *time.Location
	store   StateStore
	state   State
	now     func() time.Time
	events  EventRecorder
	locker  Locker
	guardID string
}

// GuardOption configures a guard
type GuardOption func(*Guard)

// WithClock overrides the time source
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.now = now
	}
}

// WithEventRecorder records trips and resets
func WithEventRecorder(r EventRecorder) GuardOption {
	return func(g *Guard) {
		g.events = r
	}
}

// WithLocker adds a cross-process lock around every mutating check
func WithLocker(l Locker) GuardOption {
	return func(g *Guard) {
		g.locker = l
	}
}

// WithGuardID names the guard in event records
func WithGuardID(id string) GuardOption {
	return func(g *Guard) {
		g.guardID = id
	}
}

// NewGuard creates a guard, restoring persisted state when present.
// Any load failure other than ErrStateNotFound is returned.
func NewGuard(ctx context.Context, cfg *config.RiskConfig, store StateStore, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("risk guard requires a state store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	g := &Guard{
		cfg:     *cfg,
		loc:     loc,
		store:   store,
		now:     time.Now,
		guardID: "default",
	}
	for _, opt := range opts {
		opt(g)
	}

	loaded, err := store.Load(ctx)
	switch {
	case err == nil:
		g.state = *loaded
		logger.Info("risk guard state restored",
			zap.String("guard", g.guardID),
			zap.String("last_reset_date", g.state.LastResetDate),
			zap.Bool("circuit_breaker_triggered", g.state.CircuitBreakerTriggered),
			zap.Bool("drawdown_triggered", g.state.DrawdownTriggered),
			zap.Float64("high_water_mark", g.state.HighWaterMark),
		)
	case errors.Is(err, ErrStateNotFound):
		g.state = freshState(cfg.InitialPortfolioValue, g.today())
		if err := store.Save(ctx, &g.state); err != nil {
			return nil, fmt.Errorf("failed to persist initial risk guard state: %w", err)
		}
		logger.Info("risk guard initialized with fresh state",
			zap.String("guard", g.guardID),
			zap.Float64("initial_value", cfg.InitialPortfolioValue),
		)
	default:
		return nil, fmt.Errorf("failed to load risk guard state: %w", err)
	}

	return g, nil
}

// State returns a snapshot of current state
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// CheckPositionSize reports whether the order must be rejected for size
func (g *Guard) CheckPositionSize(orderValue, portfolioValue float64) bool {
	if portfolioValue <= 0 || orderValue < 0 || math.IsNaN(orderValue) {
		return true
	}
	return orderValue > portfolioValue*g.cfg.MaxPositionSizePct/100
}

// CheckVolatility reports whether the volatility index forces a halt
func (g *Guard) CheckVolatility(vix float64) bool {
	return vix > g.cfg.MaxVIX
}

// ValidateOrder approves an order only when no breaker is tripped and size is within limits
func (g *Guard) ValidateOrder(ctx context.Context, orderValue, portfolioValue float64) (bool, string) {
	g.mu.Lock()
	if g.locker != nil {
		if err := g.refresh(ctx); err != nil {
			g.mu.Unlock()
			return false, fmt.Sprintf("risk state unavailable: %v", err)
		}
	}
	state := g.state
	g.mu.Unlock()

	if state.DrawdownTriggered {
		return false, "drawdown halt active"
	}
	if state.CircuitBreakerTriggered {
		return false, "daily circuit breaker triggered"
	}
	if g.CheckPositionSize(orderValue, portfolioValue) {
		return false, fmt.Sprintf("position size %.2f exceeds %.1f%% of portfolio %.2f",
			orderValue, g.cfg.MaxPositionSizePct, portfolioValue)
	}

	return true, "OK"
}

// ShouldHaltTrading runs both breaker checks and the volatility gate
func (g *Guard) ShouldHaltTrading(ctx context.Context, portfolioValue float64, vix *float64) (bool, string, error) {
	drawdown, err := g.CheckDrawdownLimit(ctx, portfolioValue)
	if err != nil {
		return true, "risk state unavailable", err
	}
	if drawdown {
		return true, "drawdown halt active", nil
	}

	daily, err := g.CheckDailyLossLimit(ctx, portfolioValue)
	if err != nil {
		return true, "risk state unavailable", err
	}
	if daily {
		return true, "daily circuit breaker triggered", nil
	}

	if vix != nil && g.CheckVolatility(*vix) {
		return true, fmt.Sprintf("VIX too high: %.2f (max %.2f)", *vix, g.cfg.MaxVIX), nil
	}

	return false, "OK", nil
}

// mutate runs fn under the guard lock and persists state if fn changed it.
// A persistence failure fails closed.
func (g *Guard) mutate(ctx context.Context, fn func(s *State) bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locker != nil {
		if err := g.locker.Lock(ctx); err != nil {
			return true, fmt.Errorf("failed to acquire risk guard lock: %w", err)
		}
		defer func() {
			if err := g.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release risk guard lock", zap.Error(err))
			}
		}()
		if err := g.refresh(ctx); err != nil {
			return true, err
		}
	}

	next := g.state
	halt := fn(&next)
	if next == g.state {
		return halt, nil
	}

	if err := g.store.Save(ctx, &next); err != nil {
		logger.Error("failed to persist risk guard state",
			zap.String("guard", g.guardID),
			zap.Error(err),
		)
		// Keep trips in memory even when they could not be persisted
		if next.CircuitBreakerTriggered && !g.state.CircuitBreakerTriggered {
			g.state.CircuitBreakerTriggered = true
			g.state.LastResetDate = next.LastResetDate
			g.state.DailyStartValue = next.DailyStartValue
		}
		g.state.DrawdownTriggered = g.state.DrawdownTriggered || next.DrawdownTriggered
		return true, fmt.Errorf("failed to persist risk guard state: %w", err)
	}

	g.state = next
	return halt, nil
}

// refresh reloads state written by other processes. Caller holds g.mu.
func (g *Guard) refresh(ctx context.Context) error {
	loaded, err := g.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return fmt.Errorf("failed to reload risk guard state: %w", err)
	}
	// A trip seen by this process is never forgotten. The daily trip is kept
	// unless the stored state already belongs to a later day.
	loaded.DrawdownTriggered = loaded.DrawdownTriggered || g.state.DrawdownTriggered
	if g.state.CircuitBreakerTriggered && g.state.LastResetDate >= loaded.LastResetDate && !loaded.CircuitBreakerTriggered {
		loaded.CircuitBreakerTriggered = true
		loaded.LastResetDate = g.state.LastResetDate
		loaded.DailyStartValue = g.state.DailyStartValue
	}
	g.state = *loaded
	return nil
}

func (g *Guard) record(ctx context.Context, eventType, description string, data map[string]interface{}) {
	if g.events == nil {
		return
	}
	if err := g.events.LogRiskEvent(ctx, g.guardID, eventType, description, data); err != nil {
		logger.Warn("failed to record risk event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (g *Guard) today() string {
	return dateKey(g.now(), g.loc)
}
