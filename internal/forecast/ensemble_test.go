package forecast

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/pkg/models"
)

// stubForecaster returns a straight-line path ending at changePct from the last close
type stubForecaster struct {
	name      string
	changePct float64
	fail      bool
	panics    bool
	delay     time.Duration
	calls     atomic.Int32
}

func (s *stubForecaster) Name() string { return s.name }

func (s *stubForecaster) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	s.calls.Add(1)
	if s.panics {
		panic("model exploded")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail {
		return Failure(s.name, "not enough data")
	}

	current := series.LastClose()
	predicted := make([]float64, horizon)
	for i := range predicted {
		predicted[i] = current * (1 + s.changePct/100*float64(i+1)/float64(horizon))
	}
	return Success(NewOutput(s.name, current, predicted))
}

func flatSeries(count int, price float64) models.Series {
	series := make(models.Series, count)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range series {
		p := models.NewDecimal(price)
		series[i] = models.Candle{Timestamp: ts.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: models.NewDecimal(1)}
	}
	return series
}

func trendSeries(count int, start, step float64) models.Series {
	series := make(models.Series, count)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range series {
		next := price * (1 + step)
		series[i] = models.Candle{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      models.NewDecimal(price),
			High:      models.NewDecimal(math.Max(price, next) * 1.001),
			Low:       models.NewDecimal(math.Min(price, next) * 0.999),
			Close:     models.NewDecimal(next),
			Volume:    models.NewDecimal(1000),
		}
		price = next
	}
	return series
}

func mustEnsemble(t *testing.T, members []Member, opts ...Option) *Ensemble {
	t.Helper()
	e, err := NewEnsemble(members, opts...)
	if err != nil {
		t.Fatalf("NewEnsemble: %v", err)
	}
	return e
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEnsemble_RenormalizesOverSurvivors(t *testing.T) {
	tests := []struct {
		name       string
		dWeight    float64
		wantA      float64
		wantC      float64
		wantD      float64
		wantChange float64
	}{
		{"base weights", 0.15, 0.35 / 0.70, 0.20 / 0.70, 0.15 / 0.70, 0.714},
		{"light fourth model", 0.10, 0.538, 0.308, 0.154, 0.77},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustEnsemble(t, []Member{
				{Forecaster: &stubForecaster{name: "A", changePct: 2}, Weight: 0.35},
				{Forecaster: &stubForecaster{name: "B", fail: true}, Weight: 0.30},
				{Forecaster: &stubForecaster{name: "C", changePct: -1}, Weight: 0.20},
				{Forecaster: &stubForecaster{name: "D", changePct: 0}, Weight: tt.dWeight},
			})

			c, err := e.Forecast(context.Background(), flatSeries(30, 100), 5, nil)
			if err != nil {
				t.Fatalf("Forecast: %v", err)
			}

			if len(c.ModelsUsed) != 3 {
				t.Fatalf("Expected 3 surviving models, got %v", c.ModelsUsed)
			}
			if _, ok := c.Weights["B"]; ok {
				t.Error("Failed model must not carry weight")
			}

			sum := 0.0
			for _, w := range c.Weights {
				sum += w
			}
			if !approx(sum, 1, 1e-9) {
				t.Errorf("Weights should sum to 1, got %.6f", sum)
			}

			if !approx(c.Weights["A"], tt.wantA, 1e-3) || !approx(c.Weights["C"], tt.wantC, 1e-3) || !approx(c.Weights["D"], tt.wantD, 1e-3) {
				t.Errorf("Unexpected weights: %v", c.Weights)
			}
			if !approx(c.ChangePct, tt.wantChange, 5e-3) {
				t.Errorf("Expected change ≈%.3f%%, got %.4f%%", tt.wantChange, c.ChangePct)
			}
			if c.Trend != models.TrendFlat {
				t.Errorf("Sub-1%% move should be FLAT, got %s", c.Trend)
			}

			failed := 0
			for _, r := range c.Results {
				if !r.OK() {
					failed++
					if r.Model() != "B" || r.Reason() == "" {
						t.Errorf("Unexpected failure record %s: %q", r.Model(), r.Reason())
					}
				}
			}
			if failed != 1 {
				t.Errorf("Expected 1 recorded failure, got %d", failed)
			}
		})
	}
}

func TestEnsemble_AllModelsFail(t *testing.T) {
	e := mustEnsemble(t, []Member{
		{Forecaster: &stubForecaster{name: "A", fail: true}, Weight: 0.5},
		{Forecaster: &stubForecaster{name: "B", panics: true}, Weight: 0.5},
	})

	_, err := e.Forecast(context.Background(), flatSeries(10, 100), 5, nil)
	if !errors.Is(err, ErrAllModelsFailed) {
		t.Fatalf("Expected ErrAllModelsFailed, got %v", err)
	}
}

// pointsForecaster returns the same point for every day of the horizon
type pointsForecaster struct {
	name  string
	point float64
}

func (p *pointsForecaster) Name() string { return p.name }

func (p *pointsForecaster) Forecast(ctx context.Context, series models.Series, horizon int) Result {
	predicted := make([]float64, horizon)
	for i := range predicted {
		predicted[i] = p.point
	}
	return Success(NewOutput(p.name, series.LastClose(), predicted))
}

func TestEnsemble_RejectsInvalidPredictions(t *testing.T) {
	tests := []struct {
		name  string
		point float64
	}{
		{"NaN", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"zero price", 0},
		{"negative price", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustEnsemble(t, []Member{
				{Forecaster: &stubForecaster{name: "good", changePct: 5}, Weight: 0.5},
				{Forecaster: &pointsForecaster{name: "bad", point: tt.point}, Weight: 0.5},
			})

			c, err := e.Forecast(context.Background(), flatSeries(10, 100), 3, nil)
			if err != nil {
				t.Fatalf("Forecast: %v", err)
			}
			if len(c.ModelsUsed) != 1 || c.ModelsUsed[0] != "good" {
				t.Fatalf("Invalid model must be excluded, used %v", c.ModelsUsed)
			}
			if !approx(c.ChangePct, 5, 1e-9) || c.Trend != models.TrendUp {
				t.Errorf("Expected +5%% UP from the valid model, got %.4f %s", c.ChangePct, c.Trend)
			}
			if c.Results[1].OK() {
				t.Error("Invalid prediction should be recorded as a failure")
			}
		})
	}

	e := mustEnsemble(t, []Member{{Forecaster: &pointsForecaster{name: "bad", point: math.NaN()}, Weight: 1}})
	if _, err := e.Forecast(context.Background(), flatSeries(10, 100), 3, nil); !errors.Is(err, ErrAllModelsFailed) {
		t.Errorf("Only invalid predictions should fail the ensemble, got %v", err)
	}
}

func TestEnsemble_SingleSurvivor(t *testing.T) {
	e := mustEnsemble(t, []Member{
		{Forecaster: &stubForecaster{name: "A", changePct: 4}, Weight: 0.1},
		{Forecaster: &stubForecaster{name: "B", fail: true}, Weight: 0.9},
	})

	c, err := e.Forecast(context.Background(), flatSeries(10, 100), 4, &models.Fundamentals{Score: 0.8, ConfidenceMultiplier: 1.5})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if !approx(c.Weights["A"], 1, 1e-12) {
		t.Errorf("Sole survivor should get weight 1, got %.4f", c.Weights["A"])
	}
	// 4% raw move amplified by 1.5
	if !approx(c.ChangePct, 6, 1e-9) {
		t.Errorf("Expected 6%% change, got %.4f", c.ChangePct)
	}
	if c.Trend != models.TrendUp {
		t.Errorf("Expected UP, got %s", c.Trend)
	}
	if c.PeakDay != 4 || !approx(c.PeakPrice, 106, 1e-9) {
		t.Errorf("Expected peak 106 on day 4, got %.4f on day %d", c.PeakPrice, c.PeakDay)
	}
	if c.Fundamentals == nil || c.Fundamentals.ConfidenceMultiplier != 1.5 {
		t.Error("Applied fundamentals should be recorded")
	}
}

func TestEnsemble_FundamentalsDampen(t *testing.T) {
	e := mustEnsemble(t, []Member{
		{Forecaster: &stubForecaster{name: "A", changePct: -3}, Weight: 1},
	})
	series := flatSeries(10, 200)

	raw, err := e.Forecast(context.Background(), series, 5, nil)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	damped, err := e.Forecast(context.Background(), series, 5, &models.Fundamentals{ConfidenceMultiplier: 0.25})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if raw.Trend != models.TrendDown {
		t.Errorf("Raw -3%% should be DOWN, got %s", raw.Trend)
	}
	if !approx(damped.ChangePct, -0.75, 1e-9) {
		t.Errorf("Expected -0.75%%, got %.4f", damped.ChangePct)
	}
	if damped.Trend != models.TrendFlat {
		t.Errorf("Damped move inside deadband should be FLAT, got %s", damped.Trend)
	}

	ignored, err := e.Forecast(context.Background(), series, 5, &models.Fundamentals{ConfidenceMultiplier: 0})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if !approx(ignored.ChangePct, raw.ChangePct, 1e-12) || ignored.Fundamentals != nil {
		t.Error("Non-positive multiplier should be ignored")
	}
}

func TestEnsemble_TrendVotesAreDiagnosticOnly(t *testing.T) {
	e := mustEnsemble(t, []Member{
		{Forecaster: &stubForecaster{name: "up", changePct: 5}, Weight: 0.2},
		{Forecaster: &stubForecaster{name: "down1", changePct: -0.5}, Weight: 0.4},
		{Forecaster: &stubForecaster{name: "down2", changePct: -0.5}, Weight: 0.4},
	})

	c, err := e.Forecast(context.Background(), flatSeries(10, 100), 5, nil)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if c.TrendVotes["up"] != models.TrendUp || c.TrendVotes["down1"] != models.TrendFlat {
		t.Errorf("Unexpected votes: %v", c.TrendVotes)
	}
	// 0.2*5 - 0.8*0.5 = +0.6%
	if !approx(c.ChangePct, 0.6, 1e-9) || c.Trend != models.TrendFlat {
		t.Errorf("Consensus comes from weighted prices, got %.4f%% %s", c.ChangePct, c.Trend)
	}
}

func TestEnsemble_ModelTimeout(t *testing.T) {
	slow := &stubForecaster{name: "slow", changePct: 10, delay: 200 * time.Millisecond}
	fast := &stubForecaster{name: "fast", changePct: 2}
	e := mustEnsemble(t, []Member{
		{Forecaster: slow, Weight: 0.5},
		{Forecaster: fast, Weight: 0.5},
	}, WithModelTimeout(20*time.Millisecond))

	start := time.Now()
	c, err := e.Forecast(context.Background(), flatSeries(10, 100), 5, nil)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Error("Ensemble should not wait for a timed out model")
	}
	if len(c.ModelsUsed) != 1 || c.ModelsUsed[0] != "fast" {
		t.Errorf("Expected only fast model, got %v", c.ModelsUsed)
	}
}

func TestEnsemble_RecoversPanickingModel(t *testing.T) {
	e := mustEnsemble(t, []Member{
		{Forecaster: &stubForecaster{name: "boom", panics: true}, Weight: 0.5},
		{Forecaster: &stubForecaster{name: "ok", changePct: 1.5}, Weight: 0.5},
	})

	c, err := e.Forecast(context.Background(), flatSeries(10, 100), 3, nil)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if c.Trend != models.TrendUp {
		t.Errorf("Expected UP from surviving model, got %s", c.Trend)
	}
	if c.Results[0].OK() {
		t.Error("Panicking model should be recorded as failure")
	}
}

func TestNewEnsemble_Validation(t *testing.T) {
	tests := []struct {
		name    string
		members []Member
	}{
		{"empty", nil},
		{"nil forecaster", []Member{{Weight: 1}}},
		{"negative weight", []Member{{Forecaster: &stubForecaster{name: "a"}, Weight: -0.1}}},
		{"zero weights", []Member{{Forecaster: &stubForecaster{name: "a"}, Weight: 0}}},
		{"duplicate", []Member{
			{Forecaster: &stubForecaster{name: "a"}, Weight: 1},
			{Forecaster: &stubForecaster{name: "a"}, Weight: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEnsemble(tt.members); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestEnsemble_InvalidInput(t *testing.T) {
	e := mustEnsemble(t, []Member{{Forecaster: &stubForecaster{name: "a"}, Weight: 1}})

	if _, err := e.Forecast(context.Background(), flatSeries(10, 100), 0, nil); err == nil {
		t.Error("Zero horizon should be rejected")
	}
	if _, err := e.Forecast(context.Background(), nil, 5, nil); err == nil {
		t.Error("Empty series should be rejected")
	}
}

func TestDefaultEnsemble_BuiltinModels(t *testing.T) {
	e, err := NewDefaultEnsemble(&config.Default().Ensemble)
	if err != nil {
		t.Fatalf("NewDefaultEnsemble: %v", err)
	}

	t.Run("uptrend", func(t *testing.T) {
		c, err := e.Forecast(context.Background(), trendSeries(120, 100, 0.01), 5, nil)
		if err != nil {
			t.Fatalf("Forecast: %v", err)
		}
		if len(c.ModelsUsed) != 4 {
			t.Errorf("Expected all 4 models, got %v", c.ModelsUsed)
		}
		if c.Trend != models.TrendUp {
			t.Errorf("Steady 1%%/bar rise should forecast UP, got %s (%.2f%%)", c.Trend, c.ChangePct)
		}
	})

	t.Run("short history degrades gracefully", func(t *testing.T) {
		// Enough for momentum and mean reversion only
		c, err := e.Forecast(context.Background(), trendSeries(30, 100, 0.01), 5, nil)
		if err != nil {
			t.Fatalf("Forecast: %v", err)
		}
		if len(c.ModelsUsed) != 2 {
			t.Errorf("Expected 2 survivors, got %v", c.ModelsUsed)
		}
	})

	t.Run("too short for every model", func(t *testing.T) {
		_, err := e.Forecast(context.Background(), trendSeries(3, 100, 0.01), 5, nil)
		if !errors.Is(err, ErrAllModelsFailed) {
			t.Errorf("Expected ErrAllModelsFailed, got %v", err)
		}
	})
}

func TestBuiltinModels(t *testing.T) {
	ctx := context.Background()

	t.Run("momentum clips step", func(t *testing.T) {
		res := NewMomentum().Forecast(ctx, trendSeries(20, 100, 0.10), 3)
		if !res.OK() {
			t.Fatalf("unexpected failure: %s", res.Reason())
		}
		out := res.Output()
		if !approx(out.Predicted[0]/out.CurrentPrice, 1.03, 1e-9) {
			t.Errorf("Step should be clipped to 3%%, got %.4f", out.Predicted[0]/out.CurrentPrice)
		}
	})

	t.Run("linear trend continues slope", func(t *testing.T) {
		res := NewLinearTrend().Forecast(ctx, trendSeries(80, 100, 0.005), 5)
		if !res.OK() {
			t.Fatalf("unexpected failure: %s", res.Reason())
		}
		if res.Output().ChangePct <= 0 {
			t.Errorf("Expected positive projection, got %.4f", res.Output().ChangePct)
		}
	})

	t.Run("linear trend needs window", func(t *testing.T) {
		if res := NewLinearTrend().Forecast(ctx, trendSeries(59, 100, 0.005), 5); res.OK() {
			t.Error("Expected failure below window")
		}
	})

	t.Run("ema drift on flat series", func(t *testing.T) {
		res := NewEMADrift().Forecast(ctx, flatSeries(60, 50), 5)
		if !res.OK() {
			t.Fatalf("unexpected failure: %s", res.Reason())
		}
		if res.Output().Trend != models.TrendFlat {
			t.Errorf("Expected FLAT, got %s", res.Output().Trend)
		}
	})

	t.Run("mean reversion pulls toward average", func(t *testing.T) {
		series := flatSeries(25, 100)
		spike := models.NewDecimal(110)
		series[len(series)-1].Close = spike
		series[len(series)-1].High = spike

		res := NewMeanReversion().Forecast(ctx, series, 5)
		if !res.OK() {
			t.Fatalf("unexpected failure: %s", res.Reason())
		}
		out := res.Output()
		if out.Predicted[4] >= 110 || out.Predicted[4] <= 100 {
			t.Errorf("Expected reversion between mean and spike, got %.4f", out.Predicted[4])
		}
		if out.Trend != models.TrendDown {
			t.Errorf("Expected DOWN, got %s", out.Trend)
		}
	})
}
