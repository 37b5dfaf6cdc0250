package forecast

import (
	"github.com/selivandex/trader-core/pkg/models"
)

// Output is one model's price path
type Output struct {
	Model        string       `json:"model"`
	CurrentPrice float64      `json:"current_price"`
	Predicted    []float64    `json:"predicted"`
	Trend        models.Trend `json:"trend"`
	ChangePct    float64      `json:"change_pct"`
}

// NewOutput derives trend and change from a predicted path
func NewOutput(model string, current float64, predicted []float64) Output {
	final := current
	if len(predicted) > 0 {
		final = predicted[len(predicted)-1]
	}
	change := 0.0
	if current != 0 {
		change = (final - current) / current * 100
	}
	return Output{
		Model:        model,
		CurrentPrice: current,
		Predicted:    predicted,
		Trend:        models.ClassifyTrend(current, final),
		ChangePct:    change,
	}
}

// Result is either a successful Output or a failure reason
type Result struct {
	model  string
	output *Output
	reason string
}

// Success wraps a model output
func Success(out Output) Result {
	return Result{model: out.Model, output: &out}
}

// Failure records why a model produced nothing
func Failure(model, reason string) Result {
	return Result{model: model, reason: reason}
}

// OK reports whether the model succeeded
func (r Result) OK() bool {
	return r.output != nil
}

// Model returns the model name
func (r Result) Model() string {
	return r.model
}

// Output returns the model output; only meaningful when OK
func (r Result) Output() Output {
	if r.output == nil {
		return Output{Model: r.model}
	}
	return *r.output
}

// Reason returns the failure reason; empty on success
func (r Result) Reason() string {
	return r.reason
}
