package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/trader-core/pkg/models"
)

// Source supplies daily price history
type Source interface {
	// Candles returns bars with from <= timestamp <= to, oldest first
	Candles(ctx context.Context, symbol string, from, to time.Time) (models.Series, error)
}

// Repository reads market data stored in ClickHouse
type Repository struct {
	ch        *sqlx.DB
	timeframe string
}

// NewRepository creates new market repository for daily bars
func NewRepository(ch *sqlx.DB) *Repository {
	return &Repository{ch: ch, timeframe: "1d"}
}

type candleRow struct {
	Timestamp time.Time `db:"timestamp"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    float64   `db:"volume"`
}

// Candles retrieves candles from ClickHouse
func (r *Repository) Candles(ctx context.Context, symbol string, from, to time.Time) (models.Series, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM market_ohlcv FINAL
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	var rows []candleRow
	if err := r.ch.SelectContext(ctx, &rows, query, symbol, r.timeframe, from, to); err != nil {
		return nil, fmt.Errorf("failed to query candles from ClickHouse: %w", err)
	}

	series := make(models.Series, 0, len(rows))
	for _, row := range rows {
		series = append(series, models.Candle{
			Timestamp: row.Timestamp,
			Open:      models.NewDecimal(row.Open),
			High:      models.NewDecimal(row.High),
			Low:       models.NewDecimal(row.Low),
			Close:     models.NewDecimal(row.Close),
			Volume:    models.NewDecimal(row.Volume),
		})
	}

	return series, nil
}

// CandleCount returns number of stored daily candles for symbol
func (r *Repository) CandleCount(ctx context.Context, symbol string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM market_ohlcv FINAL
		WHERE symbol = ? AND timeframe = ?
	`

	var count uint64
	if err := r.ch.GetContext(ctx, &count, query, symbol, r.timeframe); err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}
	return int(count), nil
}
