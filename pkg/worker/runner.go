package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/pkg/logger"
)

// Worker is one unit of periodic work
type Worker interface {
	// Name returns worker name for logging
	Name() string
	// Run executes one iteration of work
	Run(ctx context.Context) error
}

// PeriodicWorker runs a Worker immediately and then on every tick
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	wg       sync.WaitGroup
	name     string
	cancel   context.CancelFunc

	mu       sync.Mutex
	runs     int
	failures int
	lastErr  error
	lastRun  time.Time
}

// Stats is a snapshot of a worker's run history
type Stats struct {
	Name      string    `json:"name"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	LastRun   time.Time `json:"last_run"`
}

// NewPeriodicWorker creates new periodic worker
func NewPeriodicWorker(worker Worker, interval time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		name:     worker.Name(),
	}
}

// Start runs the worker in the background until ctx is done or Stop is called
func (pw *PeriodicWorker) Start(ctx context.Context) {
	ctx, pw.cancel = context.WithCancel(ctx)
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop cancels the worker and waits for its goroutine to exit; returns false on timeout
func (pw *PeriodicWorker) Stop(timeout time.Duration) bool {
	if pw.cancel != nil {
		pw.cancel()
	}

	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker stopped gracefully", zap.String("worker", pw.name))
		return true
	case <-time.After(timeout):
		logger.Warn("worker stop timeout", zap.String("worker", pw.name))
		return false
	}
}

// Stats returns run counters
func (pw *PeriodicWorker) Stats() Stats {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	s := Stats{
		Name:     pw.name,
		Runs:     pw.runs,
		Failures: pw.failures,
		LastRun:  pw.lastRun,
	}
	if pw.lastErr != nil {
		s.LastError = pw.lastErr.Error()
	}
	return s
}

func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	logger.Info("worker started",
		zap.String("worker", pw.name),
		zap.Duration("interval", pw.interval),
	)

	pw.runOnce(ctx)

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping", zap.String("worker", pw.name))
			return
		case <-ticker.C:
			pw.runOnce(ctx)
		}
	}
}

// runOnce executes one iteration; errors and panics are logged, never fatal
func (pw *PeriodicWorker) runOnce(ctx context.Context) {
	err := pw.safeRun(ctx)

	pw.mu.Lock()
	pw.runs++
	pw.lastRun = time.Now()
	pw.lastErr = err
	if err != nil {
		pw.failures++
	}
	pw.mu.Unlock()

	if err != nil {
		logger.Error("worker execution failed",
			zap.String("worker", pw.name),
			zap.Error(err),
		)
	}
}

func (pw *PeriodicWorker) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return pw.worker.Run(ctx)
}

// RunBackground starts a single periodic worker
func RunBackground(ctx context.Context, worker Worker, interval time.Duration) *PeriodicWorker {
	pw := NewPeriodicWorker(worker, interval)
	pw.Start(ctx)
	return pw
}
