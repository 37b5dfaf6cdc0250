package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/selivandex/trader-core/pkg/metrics"
)

func TestBuildInsert(t *testing.T) {
	query, args, err := buildInsert("decision_metrics", [][]interface{}{{1, "a"}, {2, "b"}})
	if err != nil {
		t.Fatalf("buildInsert: %v", err)
	}
	if query != "INSERT INTO decision_metrics VALUES (?, ?), (?, ?)" {
		t.Errorf("Unexpected query %q", query)
	}
	if len(args) != 4 {
		t.Errorf("Expected 4 args, got %d", len(args))
	}

	if _, _, err := buildInsert("t", [][]interface{}{{1, 2}, {3}}); err == nil {
		t.Error("Ragged rows should fail")
	}
	if q, _, err := buildInsert("t", nil); err != nil || q != "" {
		t.Error("Empty batch should produce no statement")
	}
}

type recordingRepo struct {
	table string
	rows  [][]interface{}
}

func (r *recordingRepo) InsertBatch(ctx context.Context, tableName string, values [][]interface{}) error {
	r.table = tableName
	r.rows = values
	return nil
}

func (r *recordingRepo) Close() error { return nil }

func TestWriter_Write(t *testing.T) {
	repo := &recordingRepo{}
	w := NewWriter(repo)

	batch := []metrics.Metric{
		&metrics.DecisionMetric{Timestamp: time.Unix(0, 0), Symbol: "ACME", Action: "BUY"},
	}
	if err := w.Write(context.Background(), "decision_metrics", batch); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if repo.table != "decision_metrics" || len(repo.rows) != 1 || repo.rows[0][2] != "ACME" {
		t.Errorf("Unexpected rows: %v", repo.rows)
	}
}
