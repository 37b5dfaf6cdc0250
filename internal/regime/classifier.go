package regime

import (
	"fmt"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/internal/indicators"
	"github.com/selivandex/trader-core/pkg/models"
)

// Label represents a discrete market regime
type Label string

const (
	Bull      Label = "BULL"
	Bear      Label = "BEAR"
	Sideways  Label = "SIDEWAYS"
	Volatile  Label = "VOLATILE"
	Uncertain Label = "UNCERTAIN"
)

// AllLabels returns every regime label
func AllLabels() []Label {
	return []Label{Bull, Bear, Sideways, Volatile, Uncertain}
}

// Assessment is the classifier output with the inputs that produced it
type Assessment struct {
	Label    Label    `json:"label"`
	Price    float64  `json:"price,omitempty"`
	SMAShort float64  `json:"sma_short,omitempty"`
	SMALong  float64  `json:"sma_long,omitempty"`
	ADX      float64  `json:"adx,omitempty"`
	VIX      *float64 `json:"vix,omitempty"`
	Reason   string   `json:"reason"`
}

// Classifier maps price history to a regime label.
// It holds only thresholds; every call is independent.
type Classifier struct {
	calc         *indicators.Calculator
	windowShort  int
	windowLong   int
	adxPeriod    int
	adxThreshold float64
	vixThreshold float64
}

// NewClassifier creates new regime classifier
func NewClassifier(cfg *config.RegimeConfig) *Classifier {
	return &Classifier{
		calc:         indicators.NewCalculator(),
		windowShort:  cfg.WindowShort,
		windowLong:   cfg.WindowLong,
		adxPeriod:    cfg.ADXPeriod,
		adxThreshold: cfg.ADXThreshold,
		vixThreshold: cfg.VIXThreshold,
	}
}

// Classify returns the regime label for series and an optional volatility index reading
func (c *Classifier) Classify(series models.Series, vix *float64) Label {
	return c.Explain(series, vix).Label
}

// Explain classifies and reports the indicator values behind the label
func (c *Classifier) Explain(series models.Series, vix *float64) Assessment {
	if len(series) < c.windowLong {
		return Assessment{
			Label:  Uncertain,
			VIX:    vix,
			Reason: fmt.Sprintf("insufficient history: %d bars, need %d", len(series), c.windowLong),
		}
	}

	// Volatility dominates trend
	if vix != nil && *vix > c.vixThreshold {
		return Assessment{
			Label:  Volatile,
			Price:  series.LastClose(),
			VIX:    vix,
			Reason: fmt.Sprintf("volatility index %.2f above %.2f", *vix, c.vixThreshold),
		}
	}

	closes := series.Closes()
	price := closes[len(closes)-1]

	// Length is already checked, so these cannot fail for sane windows
	smaShort, _ := indicators.SMA(closes, c.windowShort)
	smaLong, _ := indicators.SMA(closes, c.windowLong)

	adx, err := c.calc.ADX(series, c.adxPeriod)
	if err != nil {
		adx = 0
	}

	a := Assessment{
		Price:    price,
		SMAShort: smaShort,
		SMALong:  smaLong,
		ADX:      adx,
		VIX:      vix,
	}

	if adx < c.adxThreshold {
		a.Label = Sideways
		a.Reason = fmt.Sprintf("ADX %.2f below %.2f", adx, c.adxThreshold)
		return a
	}

	switch {
	case price > smaShort && smaShort > smaLong:
		a.Label = Bull
		a.Reason = "price above short SMA above long SMA"
	case price < smaShort && smaShort < smaLong:
		a.Label = Bear
		a.Reason = "price below short SMA below long SMA"
	case smaShort >= smaLong:
		// Pullback inside an uptrend
		a.Label = Bull
		a.Reason = "mixed ordering, short SMA at or above long SMA"
	default:
		a.Label = Bear
		a.Reason = "mixed ordering, short SMA below long SMA"
	}

	return a
}
