package decision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/selivandex/trader-core/internal/adapters/market"
)

// PortfolioFunc reports current portfolio value
type PortfolioFunc func(ctx context.Context) (float64, error)

// Worker runs the engine for one symbol on every tick of a periodic runner
type Worker struct {
	engine    *Engine
	source    market.Source
	portfolio PortfolioFunc
	template  Request
	lookback  time.Duration
	now       func() time.Time
	publish   func(Decision)

	mu   sync.Mutex
	last *Decision
}

// NewWorker creates new decision worker. template supplies symbol, horizon,
// order value, VIX and fundamentals; series and portfolio value are refreshed every run.
func NewWorker(engine *Engine, source market.Source, portfolio PortfolioFunc, template Request, lookback time.Duration) *Worker {
	return &Worker{
		engine:    engine,
		source:    source,
		portfolio: portfolio,
		template:  template,
		lookback:  lookback,
		now:       time.Now,
	}
}

// OnDecision registers a callback invoked after every run
func (w *Worker) OnDecision(fn func(Decision)) {
	w.publish = fn
}

// SetClock overrides the time source that ends each candle window
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// Name returns worker name for logging
func (w *Worker) Name() string {
	return "decision:" + w.template.Symbol
}

// Run loads fresh candles and portfolio value and makes one decision
func (w *Worker) Run(ctx context.Context) error {
	to := w.now()
	series, err := w.source.Candles(ctx, w.template.Symbol, to.Add(-w.lookback), to)
	if err != nil {
		return fmt.Errorf("failed to load candles: %w", err)
	}

	value, err := w.portfolio(ctx)
	if err != nil {
		return fmt.Errorf("failed to read portfolio value: %w", err)
	}

	req := w.template
	req.Series = series
	req.PortfolioValue = value

	d := w.engine.Decide(ctx, req)

	w.mu.Lock()
	w.last = &d
	w.mu.Unlock()

	if w.publish != nil {
		w.publish(d)
	}
	return nil
}

// Last returns the most recent decision
func (w *Worker) Last() (Decision, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Decision{}, false
	}
	return *w.last, true
}

// StaticPortfolio returns a PortfolioFunc with a fixed value
func StaticPortfolio(value float64) PortfolioFunc {
	return func(ctx context.Context) (float64, error) {
		if value <= 0 {
			return 0, fmt.Errorf("invalid portfolio value %.2f", value)
		}
		return value, nil
	}
}
