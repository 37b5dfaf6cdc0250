package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

// ErrAllModelsFailed is returned when no ensemble member produced a forecast
var ErrAllModelsFailed = errors.New("all forecast models failed")

// Member is a forecaster with its base weight
type Member struct {
	Forecaster Forecaster
	Weight     float64
}

// Consensus is the weighted ensemble forecast
type Consensus struct {
	CurrentPrice float64                 `json:"current_price"`
	Predicted    []float64               `json:"predicted"`
	Trend        models.Trend            `json:"trend"`
	ChangePct    float64                 `json:"change_pct"`
	PeakPrice    float64                 `json:"peak_price"`
	PeakDay      int                     `json:"peak_day"`
	ModelsUsed   []string                `json:"models_used"`
	Weights      map[string]float64      `json:"weights"`
	TrendVotes   map[string]models.Trend `json:"trend_votes"`
	Fundamentals *models.Fundamentals    `json:"fundamentals,omitempty"`
	Results      []Result                `json:"-"`
}

// Ensemble combines independent forecasters into one consensus path
type Ensemble struct {
	members      []Member
	modelTimeout time.Duration
}

// Option configures the ensemble
type Option func(*Ensemble)

// WithModelTimeout bounds how long one model may run; zero waits indefinitely
func WithModelTimeout(d time.Duration) Option {
	return func(e *Ensemble) {
		e.modelTimeout = d
	}
}

// NewEnsemble creates new forecast ensemble
func NewEnsemble(members []Member, opts ...Option) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one member")
	}

	seen := make(map[string]bool, len(members))
	positive := false
	for _, m := range members {
		if m.Forecaster == nil {
			return nil, fmt.Errorf("ensemble member has nil forecaster")
		}
		name := m.Forecaster.Name()
		if seen[name] {
			return nil, fmt.Errorf("duplicate ensemble member %q", name)
		}
		seen[name] = true
		if m.Weight < 0 {
			return nil, fmt.Errorf("member %q has negative weight %.4f", name, m.Weight)
		}
		if m.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return nil, fmt.Errorf("ensemble needs at least one positive weight")
	}

	e := &Ensemble{members: members}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewDefaultEnsemble builds the four built-in forecasters with configured weights
func NewDefaultEnsemble(cfg *config.EnsembleConfig) (*Ensemble, error) {
	return NewEnsemble([]Member{
		{Forecaster: NewMomentum(), Weight: cfg.MomentumWeight},
		{Forecaster: NewLinearTrend(), Weight: cfg.LinearTrendWeight},
		{Forecaster: NewEMADrift(), Weight: cfg.EMADriftWeight},
		{Forecaster: NewMeanReversion(), Weight: cfg.MeanReversionWeight},
	}, WithModelTimeout(cfg.ModelTimeout))
}

// Forecast runs every member in parallel and combines the survivors
func (e *Ensemble) Forecast(ctx context.Context, series models.Series, horizon int, fundamentals *models.Fundamentals) (*Consensus, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("invalid horizon %d", horizon)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}

	results := e.runMembers(ctx, series, horizon)

	type survivor struct {
		output Output
		weight float64
	}
	survivors := make([]survivor, 0, len(results))
	failures := make([]string, 0)
	totalWeight := 0.0

	for i, res := range results {
		if !res.OK() {
			failures = append(failures, fmt.Sprintf("%s: %s", res.Model(), res.Reason()))
			logger.Warn("forecast model failed",
				zap.String("model", res.Model()),
				zap.String("reason", res.Reason()),
			)
			continue
		}

		out := res.Output()
		if len(out.Predicted) != horizon {
			reason := fmt.Sprintf("returned %d points, want %d", len(out.Predicted), horizon)
			results[i] = Failure(res.Model(), reason)
			failures = append(failures, fmt.Sprintf("%s: %s", res.Model(), reason))
			continue
		}
		if !validPrices(out.Predicted) {
			reason := "non-finite or non-positive prediction"
			results[i] = Failure(res.Model(), reason)
			failures = append(failures, fmt.Sprintf("%s: %s", res.Model(), reason))
			logger.Warn("forecast model failed",
				zap.String("model", res.Model()),
				zap.String("reason", reason),
			)
			continue
		}

		w := e.members[i].Weight
		if w == 0 {
			continue
		}
		survivors = append(survivors, survivor{output: out, weight: w})
		totalWeight += w
	}

	if len(survivors) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllModelsFailed, strings.Join(failures, "; "))
	}

	current := series.LastClose()
	consensus := &Consensus{
		CurrentPrice: current,
		Predicted:    make([]float64, horizon),
		ModelsUsed:   make([]string, 0, len(survivors)),
		Weights:      make(map[string]float64, len(survivors)),
		TrendVotes:   make(map[string]models.Trend, len(survivors)),
		Results:      results,
	}

	for _, s := range survivors {
		w := s.weight / totalWeight
		consensus.ModelsUsed = append(consensus.ModelsUsed, s.output.Model)
		consensus.Weights[s.output.Model] = w
		consensus.TrendVotes[s.output.Model] = s.output.Trend
		for day, p := range s.output.Predicted {
			consensus.Predicted[day] += w * p
		}
	}

	if fundamentals != nil {
		if fundamentals.ConfidenceMultiplier > 0 {
			applyFundamentals(consensus.Predicted, current, fundamentals.ConfidenceMultiplier)
			f := *fundamentals
			consensus.Fundamentals = &f
		} else {
			logger.Warn("ignoring fundamentals with non-positive confidence multiplier",
				zap.Float64("multiplier", fundamentals.ConfidenceMultiplier),
			)
		}
	}

	final := consensus.Predicted[horizon-1]
	consensus.ChangePct = (final - current) / current * 100
	consensus.Trend = models.TrendFromChangePct(consensus.ChangePct)
	consensus.PeakPrice, consensus.PeakDay = peak(consensus.Predicted)

	logger.Debug("ensemble forecast",
		zap.Strings("models", consensus.ModelsUsed),
		zap.Int("failed", len(failures)),
		zap.String("trend", string(consensus.Trend)),
		zap.Float64("change_pct", consensus.ChangePct),
	)

	return consensus, nil
}

// runMembers invokes each member concurrently and waits for all of them.
// Results keep member order.
func (e *Ensemble) runMembers(ctx context.Context, series models.Series, horizon int) []Result {
	type indexed struct {
		idx int
		res Result
	}

	results := make([]Result, len(e.members))
	ch := make(chan indexed, len(e.members))

	for i, m := range e.members {
		go func(idx int, f Forecaster) {
			ch <- indexed{idx: idx, res: e.runOne(ctx, f, series, horizon)}
		}(i, m.Forecaster)
	}

	for range e.members {
		r := <-ch
		results[r.idx] = r.res
	}

	return results
}

func (e *Ensemble) runOne(ctx context.Context, f Forecaster, series models.Series, horizon int) Result {
	name := f.Name()
	if e.modelTimeout <= 0 {
		return safeForecast(ctx, f, series, horizon)
	}

	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- safeForecast(ctx, f, series, horizon)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Failure(name, fmt.Sprintf("timed out after %s", e.modelTimeout))
	}
}

func safeForecast(ctx context.Context, f Forecaster, series models.Series, horizon int) (res Result) {
	name := f.Name()
	defer func() {
		if r := recover(); r != nil {
			res = Failure(name, fmt.Sprintf("panic: %v", r))
		}
	}()

	res = f.Forecast(ctx, series, horizon)
	if res.Model() == "" {
		if res.OK() {
			out := res.Output()
			out.Model = name
			res = Success(out)
		} else {
			res = Failure(name, res.Reason())
		}
	}
	return res
}

// applyFundamentals scales each day's technical move by the confidence multiplier
func applyFundamentals(predicted []float64, current, multiplier float64) {
	for i, weighted := range predicted {
		delta := (weighted - current) / current * multiplier
		predicted[i] = current + delta*current
	}
}

// peak returns the highest predicted price and its 1-based day; earliest wins ties
func peak(predicted []float64) (float64, int) {
	best := 0
	for i := range predicted {
		if predicted[i] > predicted[best] {
			best = i
		}
	}
	return predicted[best], best + 1
}

func validPrices(prices []float64) bool {
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return false
		}
	}
	return true
}
