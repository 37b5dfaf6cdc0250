package decision

import (
	"github.com/selivandex/trader-core/pkg/metrics"
)

// Metric flattens the decision into a decision_metrics row
func (d Decision) Metric(guardID string) *metrics.DecisionMetric {
	m := &metrics.DecisionMetric{
		Timestamp:      d.DecidedAt,
		GuardID:        guardID,
		Symbol:         d.Symbol,
		Action:         string(d.Action),
		Reason:         d.Reason,
		Regime:         string(d.Regime),
		OrderValue:     d.OrderValue,
		BlackSwan:      d.BlackSwan,
		DecisionTimeMs: d.DurationMs,
	}
	if d.Forecast != nil {
		m.ForecastTrend = string(d.Forecast.Trend)
		m.ForecastChange = d.Forecast.ChangePct
		m.ModelsUsed = d.Forecast.ModelsUsed
	}
	return m
}
