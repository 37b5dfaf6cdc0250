package metrics

import "context"

// Metric is one row destined for a metrics table
type Metric interface {
	// TableName returns the table this metric is written to
	TableName() string
	// Values returns metric values in column order
	Values() []interface{}
}

// Writer writes metrics to storage
type Writer interface {
	// Write writes batch of metrics to one table
	Write(ctx context.Context, tableName string, metrics []Metric) error
	// Close releases writer resources
	Close() error
}
