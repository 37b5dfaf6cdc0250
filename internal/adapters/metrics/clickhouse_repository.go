package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/trader-core/pkg/logger"
)

const decisionMetricsDDL = `CREATE TABLE IF NOT EXISTS decision_metrics (
	timestamp        DateTime,
	guard_id         LowCardinality(String),
	symbol           LowCardinality(String),
	action           LowCardinality(String),
	reason           String,
	regime           LowCardinality(String),
	forecast_trend   LowCardinality(String),
	forecast_change  Float64,
	order_value      Float64,
	models_used      Array(String),
	black_swan       Bool,
	decision_time_ms Int64
) ENGINE = MergeTree
ORDER BY (symbol, timestamp)`

// ClickHouseRepository implements Repository for ClickHouse
type ClickHouseRepository struct {
	db *sqlx.DB
}

// NewClickHouseRepository creates new ClickHouse repository
func NewClickHouseRepository(db *sqlx.DB) *ClickHouseRepository {
	return &ClickHouseRepository{db: db}
}

// EnsureSchema creates metric tables
func (r *ClickHouseRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, decisionMetricsDDL); err != nil {
		return fmt.Errorf("failed to create decision_metrics: %w", err)
	}
	return nil
}

// InsertBatch inserts rows into a ClickHouse table in one statement
func (r *ClickHouseRepository) InsertBatch(ctx context.Context, tableName string, values [][]interface{}) error {
	query, args, err := buildInsert(tableName, values)
	if err != nil || query == "" {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ClickHouse insert failed: %w", err)
	}

	logger.Debug("ClickHouse batch insert successful",
		zap.String("table", tableName),
		zap.Int("rows", len(values)),
	)

	return nil
}

// Close is a no-op; the connection is owned by the caller
func (r *ClickHouseRepository) Close() error {
	return nil
}

func buildInsert(tableName string, values [][]interface{}) (string, []interface{}, error) {
	if len(values) == 0 {
		return "", nil, nil
	}

	columnCount := len(values[0])
	if columnCount == 0 {
		return "", nil, fmt.Errorf("values have no columns")
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", columnCount), ", ") + ")"
	placeholders := make([]string, len(values))
	args := make([]interface{}, 0, len(values)*columnCount)

	for i, v := range values {
		if len(v) != columnCount {
			return "", nil, fmt.Errorf("row %d has wrong column count: expected %d, got %d", i, columnCount, len(v))
		}
		placeholders[i] = row
		args = append(args, v...)
	}

	return fmt.Sprintf("INSERT INTO %s VALUES %s", tableName, strings.Join(placeholders, ", ")), args, nil
}
