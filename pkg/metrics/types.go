package metrics

import "time"

// DecisionMetric records one decision cycle outcome
type DecisionMetric struct {
	Timestamp      time.Time
	GuardID        string
	Symbol         string
	Action         string
	Reason         string
	Regime         string
	ForecastTrend  string
	ForecastChange float64
	OrderValue     float64
	ModelsUsed     []string
	BlackSwan      bool
	DecisionTimeMs int64
}

func (m *DecisionMetric) TableName() string {
	return "decision_metrics"
}

func (m *DecisionMetric) Values() []interface{} {
	models := m.ModelsUsed
	if models == nil {
		models = []string{}
	}
	return []interface{}{
		m.Timestamp,
		m.GuardID,
		m.Symbol,
		m.Action,
		m.Reason,
		m.Regime,
		m.ForecastTrend,
		m.ForecastChange,
		m.OrderValue,
		models,
		m.BlackSwan,
		m.DecisionTimeMs,
	}
}
