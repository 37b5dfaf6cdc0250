package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/selivandex/trader-core/pkg/models"
)

func TestCalculator_SMA(t *testing.T) {
	calc := NewCalculator()

	candles := generateTestCandles(30, 100, 0)
	sma, err := calc.SMA(candles, 20)
	if err != nil {
		t.Fatalf("Failed to calculate SMA: %v", err)
	}
	if math.Abs(sma-100) > 1e-9 {
		t.Errorf("SMA of flat series should be 100, got %.6f", sma)
	}

	if _, err := calc.SMA(candles, 50); err == nil {
		t.Error("Should error with insufficient data")
	}
}

func TestSMA_LastWindow(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	sma, err := SMA(values, 3)
	if err != nil {
		t.Fatalf("Failed to calculate SMA: %v", err)
	}
	if math.Abs(sma-5) > 1e-9 {
		t.Errorf("Expected SMA 5, got %.6f", sma)
	}
}

func TestCalculator_ADX(t *testing.T) {
	calc := NewCalculator()

	t.Run("strong uptrend", func(t *testing.T) {
		candles := generateTestCandles(60, 100, 0.01)
		adx, err := calc.ADX(candles, 14)
		if err != nil {
			t.Fatalf("Failed to calculate ADX: %v", err)
		}
		if adx < 25 {
			t.Errorf("Expected strong trend ADX > 25, got %.2f", adx)
		}
	})

	t.Run("strong downtrend", func(t *testing.T) {
		candles := generateTestCandles(60, 100, -0.01)
		adx, err := calc.ADX(candles, 14)
		if err != nil {
			t.Fatalf("Failed to calculate ADX: %v", err)
		}
		if adx < 25 {
			t.Errorf("Expected strong trend ADX > 25, got %.2f", adx)
		}
	})

	t.Run("range bound", func(t *testing.T) {
		candles := generateZigZagCandles(60, 100, 0.02)
		adx, err := calc.ADX(candles, 14)
		if err != nil {
			t.Fatalf("Failed to calculate ADX: %v", err)
		}
		if adx >= 20 {
			t.Errorf("Expected weak trend ADX < 20, got %.2f", adx)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		candles := generateTestCandles(20, 100, 0.01)
		if _, err := calc.ADX(candles, 14); err == nil {
			t.Error("Should error with insufficient data")
		}
	})
}

func TestCalculator_ATR(t *testing.T) {
	calc := NewCalculator()

	candles := generateTestCandles(30, 100, 0.01)
	atr, err := calc.ATR(candles, 14)
	if err != nil {
		t.Fatalf("Failed to calculate ATR: %v", err)
	}
	if atr <= 0 {
		t.Errorf("ATR should be positive, got %.4f", atr)
	}
}

func TestReturnVolatility(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100, 100}
	vol, err := ReturnVolatility(flat, 5)
	if err != nil {
		t.Fatalf("Failed to calculate volatility: %v", err)
	}
	if vol != 0 {
		t.Errorf("Flat series volatility should be 0, got %.6f", vol)
	}

	if _, err := ReturnVolatility(flat, 10); err == nil {
		t.Error("Should error with insufficient data")
	}
}

// generateTestCandles builds daily candles compounding by trend per bar
func generateTestCandles(count int, startPrice, trend float64) models.Series {
	candles := make(models.Series, count)
	price := startPrice
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		open := price
		close := price * (1 + trend)
		high := math.Max(open, close) * 1.002
		low := math.Min(open, close) * 0.998

		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      models.NewDecimal(open),
			High:      models.NewDecimal(high),
			Low:       models.NewDecimal(low),
			Close:     models.NewDecimal(close),
			Volume:    models.NewDecimal(100 + float64(i)*2),
		}

		price = close
	}

	return candles
}

// generateZigZagCandles alternates between two price levels
func generateZigZagCandles(count int, base, amplitude float64) models.Series {
	candles := make(models.Series, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := base

	for i := 0; i < count; i++ {
		close := base
		if i%2 == 0 {
			close = base * (1 + amplitude)
		}
		high := math.Max(prev, close) * 1.002
		low := math.Min(prev, close) * 0.998

		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      models.NewDecimal(prev),
			High:      models.NewDecimal(high),
			Low:       models.NewDecimal(low),
			Close:     models.NewDecimal(close),
			Volume:    models.NewDecimal(100),
		}
		prev = close
	}

	return candles
}
