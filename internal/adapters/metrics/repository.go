package metrics

import (
	"context"

	"github.com/selivandex/trader-core/pkg/metrics"
)

// Repository stores rows of one table at a time
type Repository interface {
	// InsertBatch inserts rows into tableName
	InsertBatch(ctx context.Context, tableName string, values [][]interface{}) error
	// Close closes repository connection
	Close() error
}

// Writer adapts a Repository to metrics.Writer
type Writer struct {
	repo Repository
}

// NewWriter creates new metrics writer with repository
func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// Write converts metrics to rows and inserts them
func (w *Writer) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	values := make([][]interface{}, len(batch))
	for i, metric := range batch {
		values[i] = metric.Values()
	}

	return w.repo.InsertBatch(ctx, tableName, values)
}

// Close closes writer
func (w *Writer) Close() error {
	if w.repo != nil {
		return w.repo.Close()
	}
	return nil
}
