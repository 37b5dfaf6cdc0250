package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/backtest"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

// DailyTimeframe is the timeframe tag for daily bars in market_ohlcv
const DailyTimeframe = "1d"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_ohlcv (
		timestamp DateTime,
		symbol    LowCardinality(String),
		timeframe LowCardinality(String),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, timeframe, timestamp)`,
	`CREATE TABLE IF NOT EXISTS forecast_backtest_samples (
		run_id               String,
		symbol               LowCardinality(String),
		horizon              UInt16,
		decision_date        DateTime,
		current_price        Float64,
		predicted_price      Float64,
		actual_price         Float64,
		predicted_change_pct Float64,
		actual_change_pct    Float64,
		predicted_trend      LowCardinality(String),
		actual_trend         LowCardinality(String),
		models_used          Array(String)
	) ENGINE = MergeTree
	ORDER BY (symbol, run_id, decision_date)`,
}

// Repository handles ClickHouse data operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates tables used by this repository
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply ClickHouse schema: %w", err)
		}
	}
	return nil
}

// SaveCandles saves daily OHLCV candles to ClickHouse
func (r *Repository) SaveCandles(ctx context.Context, symbol string, candles models.Series) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO market_ohlcv
		(timestamp, symbol, timeframe, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, candle := range candles {
		_, err = stmt.ExecContext(ctx,
			candle.Timestamp,
			symbol,
			DailyTimeframe,
			candle.Open.InexactFloat64(),
			candle.High.InexactFloat64(),
			candle.Low.InexactFloat64(),
			candle.Close.InexactFloat64(),
			candle.Volume.InexactFloat64(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved candles to ClickHouse",
		zap.String("symbol", symbol),
		zap.Int("count", len(candles)),
	)

	return nil
}

// SaveBacktestSamples stores every scored decision point of a backtest run
func (r *Repository) SaveBacktestSamples(ctx context.Context, runID string, report *backtest.Report) error {
	if len(report.Samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO forecast_backtest_samples
		(run_id, symbol, horizon, decision_date, current_price, predicted_price, actual_price,
		 predicted_change_pct, actual_change_pct, predicted_trend, actual_trend, models_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range report.Samples {
		_, err = stmt.ExecContext(ctx,
			runID,
			report.Symbol,
			uint16(report.Horizon),
			s.Date,
			s.CurrentPrice,
			s.PredictedPrice,
			s.ActualPrice,
			s.PredictedChangePct,
			s.ActualChangePct,
			string(s.PredictedTrend),
			string(s.ActualTrend),
			s.ModelsUsed,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert backtest sample %s: %w", s.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Info("saved backtest samples to ClickHouse",
		zap.String("run_id", runID),
		zap.String("symbol", report.Symbol),
		zap.Int("count", len(report.Samples)),
	)

	return nil
}

// RunID builds a readable identifier for a backtest run
func RunID(report *backtest.Report) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%s-h%d",
		strings.ReplaceAll(report.Symbol, "/", ""),
		report.StartDate.Format("20060102"),
		report.EndDate.Format("20060102"),
		report.Horizon,
	))
}
