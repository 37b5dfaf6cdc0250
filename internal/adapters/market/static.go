package market

import (
	"context"
	"time"

	"github.com/selivandex/trader-core/pkg/models"
)

// SeriesSource serves an in-memory series for every symbol
type SeriesSource models.Series

// Candles returns bars within [from, to]
func (s SeriesSource) Candles(ctx context.Context, symbol string, from, to time.Time) (models.Series, error) {
	var out models.Series
	for _, c := range s {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
