package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/trader-core/internal/forecast"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

// Skip reasons counted in Report.Skipped
const (
	SkipInsufficientHistory = "insufficient_history"
	SkipForecastFailed      = "forecast_failed"
	SkipNoRealizedPrice     = "no_realized_price"
)

// Predictor produces a consensus forecast from history
type Predictor interface {
	Forecast(ctx context.Context, series models.Series, horizon int, fundamentals *models.Fundamentals) (*forecast.Consensus, error)
}

// Config represents walk-forward backtest configuration
type Config struct {
	Symbol      string
	StartDate   time.Time
	EndDate     time.Time
	Horizon     int
	MinHistory  int
	Step        time.Duration
	Concurrency int
	// Anchor moves the first decision date forward to this weekday
	Anchor *time.Weekday
}

// Validate fills defaults and checks ranges
func (c *Config) Validate() error {
	if c.Horizon < 1 {
		return fmt.Errorf("horizon must be positive, got %d", c.Horizon)
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s before start date %s",
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 50
	}
	if c.Step <= 0 {
		c.Step = 7 * 24 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return nil
}

// Sample is one historical decision point scored against what happened
type Sample struct {
	Date               time.Time               `json:"date"`
	CurrentPrice       float64                 `json:"current_price"`
	PredictedPrice     float64                 `json:"predicted_price"`
	ActualPrice        float64                 `json:"actual_price"`
	PredictedChangePct float64                 `json:"predicted_change_pct"`
	ActualChangePct    float64                 `json:"actual_change_pct"`
	PredictedTrend     models.Trend            `json:"predicted_trend"`
	ActualTrend        models.Trend            `json:"actual_trend"`
	ModelsUsed         []string                `json:"models_used"`
	TrendVotes         map[string]models.Trend `json:"trend_votes"`
	FundamentalScore   *float64                `json:"fundamental_score,omitempty"`
}

// Error returns predicted minus realized percent change
func (s Sample) Error() float64 {
	return s.PredictedChangePct - s.ActualChangePct
}

// Metrics represents aggregate forecast accuracy. Rates are percentages.
type Metrics struct {
	DirectionAccuracy float64 `json:"direction_accuracy"`
	MAE               float64 `json:"mae"`
	RMSE              float64 `json:"rmse"`
	WinRate           float64 `json:"win_rate"`
	CI95              float64 `json:"confidence_interval_95"`
	TotalSamples      int     `json:"total_samples"`
	TradableSamples   int     `json:"tradable_samples"`
	// ModelAccuracy is each model's own trend-vote hit rate
	ModelAccuracy map[string]float64 `json:"model_accuracy,omitempty"`
}

// Report represents walk-forward backtest results
type Report struct {
	Symbol    string         `json:"symbol"`
	StartDate time.Time      `json:"start_date"`
	EndDate   time.Time      `json:"end_date"`
	Horizon   int            `json:"horizon"`
	Samples   []Sample       `json:"samples"`
	Metrics   Metrics        `json:"metrics"`
	Skipped   map[string]int `json:"skipped"`
}

// NoData reports whether no decision date produced a scored sample
func (r *Report) NoData() bool {
	return r.Metrics.TotalSamples == 0
}

// WalkForward replays forecasts over history without look-ahead
type WalkForward struct {
	predictor Predictor
}

// NewWalkForward creates new walk-forward backtester
func NewWalkForward(predictor Predictor) *WalkForward {
	return &WalkForward{predictor: predictor}
}

type outcome struct {
	sample *Sample
	skip   string
}

// Run scores the predictor at every decision date in the configured range.
// Per-date failures are skipped and counted; only invalid input returns an error.
func (w *WalkForward) Run(ctx context.Context, series models.Series, cfg Config, fundamentals *models.Fundamentals) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price series: %w", err)
	}

	start := cfg.StartDate
	if cfg.Anchor != nil {
		start = NextWeekday(start, *cfg.Anchor)
	}
	dates := DecisionDates(start, cfg.EndDate, cfg.Step)

	logger.Info("starting walk-forward backtest",
		zap.String("symbol", cfg.Symbol),
		zap.Time("start", cfg.StartDate),
		zap.Time("end", cfg.EndDate),
		zap.Int("horizon", cfg.Horizon),
		zap.Int("decision_dates", len(dates)),
		zap.Int("candles", len(series)),
	)

	outcomes := make([]outcome, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	var mu sync.Mutex
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := w.evaluate(gctx, series, date, cfg, fundamentals)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest interrupted: %w", err)
	}

	report := &Report{
		Symbol:    cfg.Symbol,
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
		Horizon:   cfg.Horizon,
		Samples:   make([]Sample, 0, len(dates)),
		Skipped:   make(map[string]int),
	}

	for _, out := range outcomes {
		if out.sample == nil {
			report.Skipped[out.skip]++
			continue
		}
		report.Samples = append(report.Samples, *out.sample)
	}

	sort.Slice(report.Samples, func(i, j int) bool {
		return report.Samples[i].Date.Before(report.Samples[j].Date)
	})

	report.Metrics = CalculateMetrics(report.Samples)

	logger.Info("walk-forward backtest completed",
		zap.String("symbol", cfg.Symbol),
		zap.Int("samples", report.Metrics.TotalSamples),
		zap.Any("skipped", report.Skipped),
		zap.Float64("direction_accuracy", report.Metrics.DirectionAccuracy),
	)

	return report, nil
}

// evaluate scores one decision date. A panicking predictor counts as a failed forecast.
func (w *WalkForward) evaluate(ctx context.Context, series models.Series, date time.Time, cfg Config, fundamentals *models.Fundamentals) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("forecast panicked",
				zap.Time("date", date),
				zap.Any("panic", r),
			)
			out = outcome{skip: SkipForecastFailed}
		}
	}()

	history := series.Before(date)
	if len(history) < cfg.MinHistory {
		return outcome{skip: SkipInsufficientHistory}
	}

	consensus, err := w.predictor.Forecast(ctx, history, cfg.Horizon, fundamentals)
	if err != nil {
		logger.Warn("forecast failed",
			zap.Time("date", date),
			zap.Error(err),
		)
		return outcome{skip: SkipForecastFailed}
	}

	realizedIdx := series.IndexAtOrAfter(date) + cfg.Horizon - 1
	if realizedIdx >= len(series) {
		return outcome{skip: SkipNoRealizedPrice}
	}

	current := history.LastClose()
	predicted := consensus.Predicted[len(consensus.Predicted)-1]
	actual := models.ToFloat64(series[realizedIdx].Close)
	actualChange := (actual - current) / current * 100

	sample := &Sample{
		Date:               date,
		CurrentPrice:       current,
		PredictedPrice:     predicted,
		ActualPrice:        actual,
		PredictedChangePct: (predicted - current) / current * 100,
		ActualChangePct:    actualChange,
		PredictedTrend:     consensus.Trend,
		ActualTrend:        models.TrendFromChangePct(actualChange),
		ModelsUsed:         consensus.ModelsUsed,
		TrendVotes:         consensus.TrendVotes,
	}
	if consensus.Fundamentals != nil {
		score := consensus.Fundamentals.Score
		sample.FundamentalScore = &score
	}

	return outcome{sample: sample}
}

// DecisionDates returns dates from start to end inclusive, step apart
func DecisionDates(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 || end.Before(start) {
		return nil
	}
	dates := make([]time.Time, 0, int(end.Sub(start)/step)+1)
	for d := start; !d.After(end); d = d.Add(step) {
		dates = append(dates, d)
	}
	return dates
}

// NextWeekday returns t itself when it falls on wd, else the next wd at the same clock time
func NextWeekday(t time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, days)
}

// CalculateMetrics aggregates accuracy over samples. Empty input yields zero metrics.
func CalculateMetrics(samples []Sample) Metrics {
	m := Metrics{TotalSamples: len(samples)}
	if len(samples) == 0 {
		return m
	}

	errs := make([]float64, len(samples))
	correct, wins, tradable := 0, 0, 0
	absSum, sqSum := 0.0, 0.0
	modelHits := make(map[string]int)
	modelVotes := make(map[string]int)

	for i, s := range samples {
		if s.PredictedTrend == s.ActualTrend {
			correct++
		}

		e := s.Error()
		errs[i] = e
		absSum += math.Abs(e)
		sqSum += e * e

		if s.PredictedTrend != models.TrendFlat {
			tradable++
			if (s.PredictedTrend == models.TrendUp && s.ActualChangePct > 0) ||
				(s.PredictedTrend == models.TrendDown && s.ActualChangePct < 0) {
				wins++
			}
		}

		for model, vote := range s.TrendVotes {
			modelVotes[model]++
			if vote == s.ActualTrend {
				modelHits[model]++
			}
		}
	}

	n := float64(len(samples))
	m.DirectionAccuracy = float64(correct) / n * 100
	m.MAE = absSum / n
	m.RMSE = math.Sqrt(sqSum / n)
	m.TradableSamples = tradable
	if tradable > 0 {
		m.WinRate = float64(wins) / float64(tradable) * 100
	}
	m.CI95 = 1.96 * math.Sqrt(stat.PopVariance(errs, nil))

	if len(modelVotes) > 0 {
		m.ModelAccuracy = make(map[string]float64, len(modelVotes))
		for model, votes := range modelVotes {
			m.ModelAccuracy[model] = float64(modelHits[model]) / float64(votes) * 100
		}
	}

	return m
}
