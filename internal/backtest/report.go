package backtest

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Print writes a human-readable summary of the report
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "WALK-FORWARD BACKTEST RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "\nSymbol:  %s\n", r.Symbol)
	fmt.Fprintf(w, "Period:  %s to %s\n",
		r.StartDate.Format("2006-01-02"),
		r.EndDate.Format("2006-01-02"),
	)
	fmt.Fprintf(w, "Horizon: %d bars\n", r.Horizon)

	if r.NoData() {
		fmt.Fprintln(w, "\nNO DATA: no decision date produced a scored sample")
		r.printSkipped(w)
		fmt.Fprintln(w, strings.Repeat("=", 60))
		return
	}

	m := r.Metrics
	fmt.Fprintln(w, "\nACCURACY:")
	fmt.Fprintf(w, "  Direction Accuracy: %.1f%%\n", m.DirectionAccuracy)
	fmt.Fprintf(w, "  MAE:                %.2f pp\n", m.MAE)
	fmt.Fprintf(w, "  RMSE:               %.2f pp\n", m.RMSE)
	fmt.Fprintf(w, "  95%% CI:             ±%.2f pp\n", m.CI95)

	fmt.Fprintln(w, "\nTRADING:")
	fmt.Fprintf(w, "  Total Samples:      %d\n", m.TotalSamples)
	fmt.Fprintf(w, "  Tradable Samples:   %d\n", m.TradableSamples)
	fmt.Fprintf(w, "  Win Rate:           %.1f%%\n", m.WinRate)

	if len(m.ModelAccuracy) > 0 {
		names := make([]string, 0, len(m.ModelAccuracy))
		for name := range m.ModelAccuracy {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "\nMODEL VOTES:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-18s  %.1f%%\n", name+":", m.ModelAccuracy[name])
		}
	}

	r.printSkipped(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func (r *Report) printSkipped(w io.Writer) {
	if len(r.Skipped) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSKIPPED DATES:")
	for _, reason := range []string{SkipInsufficientHistory, SkipForecastFailed, SkipNoRealizedPrice} {
		if n := r.Skipped[reason]; n > 0 {
			fmt.Fprintf(w, "  %-20s  %d\n", reason+":", n)
		}
	}
}
