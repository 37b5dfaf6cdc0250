package regime

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/pkg/models"
)

func defaultClassifier() *Classifier {
	return NewClassifier(&config.Default().Regime)
}

func vix(v float64) *float64 { return &v }

func TestClassifier_InsufficientHistory(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		name   string
		series models.Series
		vix    *float64
	}{
		{"empty", nil, nil},
		{"short uptrend", generateSegments(100, segment{199, 0.01}), nil},
		{"short with extreme vix", generateSegments(100, segment{150, -0.02}), vix(80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.series, tt.vix); got != Uncertain {
				t.Errorf("Expected UNCERTAIN, got %s", got)
			}
		})
	}
}

func TestClassifier_VolatilityPrecedence(t *testing.T) {
	c := defaultClassifier()
	uptrend := generateSegments(100, segment{250, 0.005})

	if got := c.Classify(uptrend, vix(25.01)); got != Volatile {
		t.Errorf("VIX above threshold should force VOLATILE, got %s", got)
	}

	// Threshold itself is not above threshold
	if got := c.Classify(uptrend, vix(25)); got != Bull {
		t.Errorf("VIX at threshold should fall through to trend, got %s", got)
	}

	if got := c.Classify(uptrend, nil); got != Bull {
		t.Errorf("Missing VIX should fall through to trend, got %s", got)
	}
}

func TestClassifier_Trends(t *testing.T) {
	c := defaultClassifier()

	t.Run("bull", func(t *testing.T) {
		series := generateSegments(100, segment{250, 0.005})
		a := c.Explain(series, nil)
		if a.Label != Bull {
			t.Errorf("Expected BULL, got %s (%s)", a.Label, a.Reason)
		}
		if a.ADX < 20 {
			t.Errorf("Expected trending ADX, got %.2f", a.ADX)
		}
	})

	t.Run("bear", func(t *testing.T) {
		series := generateSegments(100, segment{250, -0.005})
		if got := c.Classify(series, nil); got != Bear {
			t.Errorf("Expected BEAR, got %s", got)
		}
	})

	t.Run("sideways", func(t *testing.T) {
		series := generateZigZag(250, 100, 0.02)
		if got := c.Classify(series, nil); got != Sideways {
			t.Errorf("Expected SIDEWAYS, got %s", got)
		}
	})

	t.Run("pullback within uptrend", func(t *testing.T) {
		series := generateSegments(100, segment{240, 0.005}, segment{10, -0.02})
		a := c.Explain(series, nil)
		if !(a.Price < a.SMAShort && a.SMAShort > a.SMALong) {
			t.Fatalf("fixture is not a pullback: price=%.2f short=%.2f long=%.2f", a.Price, a.SMAShort, a.SMALong)
		}
		if a.Label != Bull {
			t.Errorf("Pullback should resolve by SMA order to BULL, got %s (ADX %.2f)", a.Label, a.ADX)
		}
	})

	t.Run("relief rally within downtrend", func(t *testing.T) {
		series := generateSegments(100, segment{240, -0.005}, segment{10, 0.02})
		a := c.Explain(series, nil)
		if a.Label != Bear {
			t.Errorf("Rally should resolve by SMA order to BEAR, got %s (ADX %.2f)", a.Label, a.ADX)
		}
	})
}

func TestClassifier_Deterministic(t *testing.T) {
	c := defaultClassifier()
	series := generateSegments(100, segment{120, 0.004}, segment{130, -0.003})

	first := c.Classify(series, vix(18))
	for i := 0; i < 5; i++ {
		if got := c.Classify(series, vix(18)); got != first {
			t.Fatalf("Classification changed between calls: %s vs %s", first, got)
		}
	}
}

func TestPolicyTable_Default(t *testing.T) {
	table := DefaultPolicyTable()

	for _, label := range AllLabels() {
		params := table.Lookup(label)
		if params.Label != label {
			t.Errorf("%s: entry carries label %s", label, params.Label)
		}
		if params.PositionSizeMult < 0 || params.PositionSizeMult > 1 {
			t.Errorf("%s: position size mult %.2f outside [0,1]", label, params.PositionSizeMult)
		}
		if params.Strategy == "" {
			t.Errorf("%s: strategy missing", label)
		}
	}

	if table.Lookup(Bull).PositionSizeMult != 1.0 {
		t.Error("BULL should allow full exposure")
	}
	if table.Lookup(Bear).PositionSizeMult != 0.5 {
		t.Error("BEAR should halve exposure")
	}
	if table.Lookup(Volatile).PositionSizeMult != 0.3 {
		t.Error("VOLATILE should use 0.3 exposure")
	}
	if table.Lookup(Uncertain).Tradable() {
		t.Error("UNCERTAIN must not be tradable")
	}
	if table.Lookup(Bear).StopLossPct >= table.Lookup(Bull).StopLossPct {
		t.Error("BEAR stop should be tighter than BULL stop")
	}
}

func TestPolicyTable_MissingEntry(t *testing.T) {
	entries := map[Label]RiskParameters{
		Bull:     {StopLossPct: 0.05, TakeProfitPct: 0.15, PositionSizeMult: 1},
		Bear:     {StopLossPct: 0.02, TakeProfitPct: 0.06, PositionSizeMult: 0.5},
		Sideways: {StopLossPct: 0.02, TakeProfitPct: 0.04, PositionSizeMult: 0.7},
		Volatile: {StopLossPct: 0.07, TakeProfitPct: 0.2, PositionSizeMult: 0.3},
	}

	_, err := NewPolicyTable(entries)
	if !errors.Is(err, ErrIncompletePolicy) {
		t.Fatalf("Expected ErrIncompletePolicy, got %v", err)
	}
}

func TestPolicyTable_InvalidMultiplier(t *testing.T) {
	entries := map[Label]RiskParameters{}
	for _, label := range AllLabels() {
		entries[label] = RiskParameters{PositionSizeMult: 0.5}
	}
	entries[Bull] = RiskParameters{PositionSizeMult: 1.2}

	if _, err := NewPolicyTable(entries); err == nil {
		t.Error("Multiplier above 1 should be rejected")
	}
}

func TestPolicyTable_UnknownLabel(t *testing.T) {
	params := DefaultPolicyTable().Lookup(Label("CRASH"))
	if params.Tradable() {
		t.Error("Unknown label must resolve to a non-tradable profile")
	}
}

func TestRiskParameters_Prices(t *testing.T) {
	params := DefaultPolicyTable().Lookup(Bull)
	if math.Abs(params.StopLossPrice(100)-95) > 1e-9 {
		t.Errorf("Expected stop 95, got %.4f", params.StopLossPrice(100))
	}
	if math.Abs(params.TakeProfitPrice(100)-115) > 1e-9 {
		t.Errorf("Expected target 115, got %.4f", params.TakeProfitPrice(100))
	}
}

type segment struct {
	bars  int
	trend float64
}

// generateSegments chains compounding price segments into one daily series
func generateSegments(startPrice float64, segments ...segment) models.Series {
	var candles models.Series
	price := startPrice
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, seg := range segments {
		for i := 0; i < seg.bars; i++ {
			open := price
			close := price * (1 + seg.trend)
			candles = append(candles, models.Candle{
				Timestamp: ts,
				Open:      models.NewDecimal(open),
				High:      models.NewDecimal(math.Max(open, close) * 1.002),
				Low:       models.NewDecimal(math.Min(open, close) * 0.998),
				Close:     models.NewDecimal(close),
				Volume:    models.NewDecimal(1000),
			})
			price = close
			ts = ts.AddDate(0, 0, 1)
		}
	}

	return candles
}

func generateZigZag(count int, base, amplitude float64) models.Series {
	candles := make(models.Series, count)
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := base

	for i := 0; i < count; i++ {
		close := base
		if i%2 == 0 {
			close = base * (1 + amplitude)
		}
		candles[i] = models.Candle{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      models.NewDecimal(prev),
			High:      models.NewDecimal(math.Max(prev, close) * 1.002),
			Low:       models.NewDecimal(math.Min(prev, close) * 0.998),
			Close:     models.NewDecimal(close),
			Volume:    models.NewDecimal(1000),
		}
		prev = close
	}

	return candles
}
