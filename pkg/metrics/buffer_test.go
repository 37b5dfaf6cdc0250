package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryWriter struct {
	mu     sync.Mutex
	rows   map[string]int
	fail   bool
	closed bool
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{rows: make(map[string]int)}
}

func (w *memoryWriter) Write(ctx context.Context, tableName string, batch []Metric) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("insert failed")
	}
	w.rows[tableName] += len(batch)
	return nil
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memoryWriter) count(table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows[table]
}

func TestBufferedMetrics_FlushOnClose(t *testing.T) {
	w := newMemoryWriter()
	bm := NewBufferedMetrics(BufferConfig{Writer: w, BatchSize: 100, FlushInterval: time.Hour})

	for i := 0; i < 3; i++ {
		if err := bm.Add(&DecisionMetric{Symbol: "ACME", Action: "HOLD"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if bm.Size() != 3 {
		t.Errorf("Expected 3 buffered, got %d", bm.Size())
	}

	if err := bm.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := w.count("decision_metrics"); got != 3 {
		t.Errorf("Expected 3 rows written, got %d", got)
	}
	if !w.closed {
		t.Error("Writer should be closed")
	}
	if err := bm.Close(context.Background()); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}

func TestBufferedMetrics_FlushOnBatchSize(t *testing.T) {
	w := newMemoryWriter()
	bm := NewBufferedMetrics(BufferConfig{Writer: w, BatchSize: 2, FlushInterval: time.Hour})
	defer bm.Close(context.Background())

	bm.Add(&DecisionMetric{Symbol: "ACME"})
	bm.Add(&DecisionMetric{Symbol: "ACME"})

	deadline := time.Now().Add(2 * time.Second)
	for w.count("decision_metrics") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Full batch was not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBufferedMetrics_Errors(t *testing.T) {
	w := newMemoryWriter()
	w.fail = true
	bm := NewBufferedMetrics(BufferConfig{Writer: w, FlushInterval: time.Hour})
	defer bm.Close(context.Background())

	if err := bm.Add(nil); err == nil {
		t.Error("nil metric should be rejected")
	}

	bm.Add(&DecisionMetric{Symbol: "ACME"})
	if err := bm.Flush(context.Background()); err == nil {
		t.Error("Expected flush error from failing writer")
	}
	if bm.Size() != 0 {
		t.Errorf("Failed batch should be dropped, %d left", bm.Size())
	}
}

func TestDecisionMetric_Values(t *testing.T) {
	m := &DecisionMetric{Timestamp: time.Unix(0, 0), Symbol: "ACME", Action: "BUY"}
	values := m.Values()
	if len(values) != 12 {
		t.Fatalf("Expected 12 columns, got %d", len(values))
	}
	if models, ok := values[9].([]string); !ok || models == nil {
		t.Error("models_used must be a non-nil string slice")
	}
}
