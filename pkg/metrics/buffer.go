package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/pkg/logger"
)

// BufferedMetrics batches metrics per table and flushes them on size or interval
type BufferedMetrics struct {
	writer      Writer
	buffer      map[string][]Metric
	bufferMu    sync.Mutex
	flushMu     sync.Mutex
	batchSize   int
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// BufferConfig configures metrics buffer
type BufferConfig struct {
	Writer        Writer
	BatchSize     int           // Flush when one table reaches this size
	FlushInterval time.Duration // Auto-flush interval
}

// NewBufferedMetrics creates new buffered metrics manager
func NewBufferedMetrics(cfg BufferConfig) *BufferedMetrics {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	bm := &BufferedMetrics{
		writer:      cfg.Writer,
		buffer:      make(map[string][]Metric),
		batchSize:   cfg.BatchSize,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	bm.wg.Add(1)
	go bm.autoFlush()

	logger.Info("metrics buffer initialized",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	return bm
}

// Add queues metric; a full batch is flushed in the background
func (bm *BufferedMetrics) Add(metric Metric) error {
	if metric == nil {
		return fmt.Errorf("metric is nil")
	}

	tableName := metric.TableName()
	if tableName == "" {
		return fmt.Errorf("metric table name is empty")
	}

	bm.bufferMu.Lock()
	bm.buffer[tableName] = append(bm.buffer[tableName], metric)
	full := len(bm.buffer[tableName]) >= bm.batchSize
	bm.bufferMu.Unlock()

	if full {
		bm.wg.Add(1)
		go func() {
			defer bm.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := bm.Flush(ctx); err != nil {
				logger.Error("auto-flush failed", zap.Error(err))
			}
		}()
	}

	return nil
}

// Flush writes everything buffered so far. Failed batches are dropped and reported.
func (bm *BufferedMetrics) Flush(ctx context.Context) error {
	bm.flushMu.Lock()
	defer bm.flushMu.Unlock()

	bm.bufferMu.Lock()
	toFlush := bm.buffer
	bm.buffer = make(map[string][]Metric)
	bm.bufferMu.Unlock()

	var failed int
	for tableName, batch := range toFlush {
		if len(batch) == 0 {
			continue
		}
		if err := bm.writer.Write(ctx, tableName, batch); err != nil {
			logger.Error("failed to flush metrics",
				zap.String("table", tableName),
				zap.Int("count", len(batch)),
				zap.Error(err),
			)
			failed++
			continue
		}
		logger.Debug("metrics flushed",
			zap.String("table", tableName),
			zap.Int("count", len(batch)),
		)
	}

	if failed > 0 {
		return fmt.Errorf("flush failed for %d tables", failed)
	}
	return nil
}

// Size returns current buffer size across all tables
func (bm *BufferedMetrics) Size() int {
	bm.bufferMu.Lock()
	defer bm.bufferMu.Unlock()

	total := 0
	for _, batch := range bm.buffer {
		total += len(batch)
	}
	return total
}

// Close stops auto-flush, flushes what is left and closes the writer
func (bm *BufferedMetrics) Close(ctx context.Context) error {
	var err error
	bm.closeOnce.Do(func() {
		close(bm.stopCh)
		bm.flushTicker.Stop()
		bm.wg.Wait()

		if ferr := bm.Flush(ctx); ferr != nil {
			err = ferr
		}
		if cerr := bm.writer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		logger.Info("metrics buffer closed", zap.Error(err))
	})
	return err
}

func (bm *BufferedMetrics) autoFlush() {
	defer bm.wg.Done()

	for {
		select {
		case <-bm.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := bm.Flush(ctx); err != nil {
				logger.Warn("periodic flush failed", zap.Error(err))
			}
			cancel()
		case <-bm.stopCh:
			return
		}
	}
}
