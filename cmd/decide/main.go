package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/internal/adapters/database"
	"github.com/selivandex/trader-core/internal/adapters/market"
	metricsAdapter "github.com/selivandex/trader-core/internal/adapters/metrics"
	redisAdapter "github.com/selivandex/trader-core/internal/adapters/redis"
	"github.com/selivandex/trader-core/internal/decision"
	"github.com/selivandex/trader-core/internal/forecast"
	"github.com/selivandex/trader-core/internal/health"
	"github.com/selivandex/trader-core/internal/regime"
	"github.com/selivandex/trader-core/internal/risk"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/metrics"
	"github.com/selivandex/trader-core/pkg/models"
	"github.com/selivandex/trader-core/pkg/worker"
)

type options struct {
	symbol    string
	asOf      time.Time
	csvPath   string
	horizon   int
	portfolio float64
	order     float64
	vix       float64
	fundScore float64
	fundMult  float64
	serve     bool
	valueFile string
}

func main() {
	var (
		symbol    = flag.String("symbol", "SPY", "Symbol to decide on")
		asOfDate  = flag.String("date", "", "Decide as of this date (YYYY-MM-DD, default today)")
		csvPath   = flag.String("csv", "", "Read candles from CSV instead of ClickHouse")
		horizon   = flag.Int("horizon", 0, "Forecast horizon in trading days (0 = config default)")
		portfolio = flag.Float64("portfolio", 0, "Current portfolio value (required)")
		order     = flag.Float64("order", 0, "Order value before regime scaling (0 = size from policy)")
		vix       = flag.Float64("vix", -1, "Volatility index reading (negative = unavailable)")
		fundScore = flag.Float64("fund-score", 0, "Fundamental score")
		fundMult  = flag.Float64("fund-mult", 0, "Fundamental confidence multiplier (0 = none)")
		serve     = flag.Bool("serve", false, "Decide every SERVICE_DECISION_INTERVAL and serve health endpoints")
		valueFile = flag.String("portfolio-file", "", "Re-read portfolio value from this file on every run")
	)
	flag.Parse()

	var asOf time.Time
	if *asOfDate != "" {
		t, err := time.Parse(time.DateOnly, *asOfDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid date: %v\n", err)
			os.Exit(1)
		}
		asOf = t
	}
	if *portfolio <= 0 && *valueFile == "" {
		fmt.Fprintln(os.Stderr, "-portfolio or -portfolio-file is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	opts := options{
		symbol:    *symbol,
		asOf:      asOf,
		csvPath:   *csvPath,
		horizon:   *horizon,
		portfolio: *portfolio,
		order:     *order,
		vix:       *vix,
		fundScore: *fundScore,
		fundMult:  *fundMult,
		serve:     *serve,
		valueFile: *valueFile,
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	checks := map[string]health.Check{}

	guard, cleanup, err := initGuard(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer cleanup()

	source, chDB, closeSource, err := openSource(ctx, cfg, opts, checks)
	if err != nil {
		return err
	}
	defer closeSource()

	ensemble, err := forecast.NewDefaultEnsemble(&cfg.Ensemble)
	if err != nil {
		return err
	}

	engine := decision.NewEngine(
		regime.NewClassifier(&cfg.Regime),
		regime.DefaultPolicyTable(),
		ensemble,
		guard,
		risk.NewPositionSizer(cfg.Risk.MaxPositionSizePct),
	)

	horizon := cfg.Backtest.Horizon
	if opts.horizon > 0 {
		horizon = opts.horizon
	}

	template := decision.Request{
		Symbol:     opts.symbol,
		Horizon:    horizon,
		OrderValue: opts.order,
	}
	if opts.vix >= 0 {
		v := opts.vix
		template.VIX = &v
	}
	if opts.fundMult > 0 {
		template.Fundamentals = &models.Fundamentals{Score: opts.fundScore, ConfidenceMultiplier: opts.fundMult}
	}

	portfolio := decision.StaticPortfolio(opts.portfolio)
	if opts.valueFile != "" {
		portfolio = filePortfolio(opts.valueFile)
	}

	lookback := time.Duration(cfg.Regime.WindowLong*2) * 24 * time.Hour
	w := decision.NewWorker(engine, source, portfolio, template, lookback)
	if !opts.asOf.IsZero() && !opts.serve {
		w.SetClock(func() time.Time { return opts.asOf })
	}

	if opts.serve {
		return serve(ctx, cfg, w, guard, chDB, checks)
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	d, _ := w.Last()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// serve decides on every interval until the process is signalled
func serve(ctx context.Context, cfg *config.Config, w *decision.Worker, guard *risk.Guard, chDB *database.DB, checks map[string]health.Check) error {
	var buffer *metrics.BufferedMetrics
	if chDB != nil {
		repo := metricsAdapter.NewClickHouseRepository(chDB.DB())
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		buffer = metrics.NewBufferedMetrics(metrics.BufferConfig{
			Writer:        metricsAdapter.NewWriter(repo),
			BatchSize:     50,
			FlushInterval: 30 * time.Second,
		})
	}

	w.OnDecision(func(d decision.Decision) {
		logger.Info("decision published",
			zap.String("symbol", d.Symbol),
			zap.String("action", string(d.Action)),
			zap.Float64("order_value", d.OrderValue),
		)
		if buffer != nil {
			if err := buffer.Add(d.Metric(cfg.State.GuardID)); err != nil {
				logger.Warn("failed to record decision metric", zap.Error(err))
			}
		}
	})

	runCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	pw := worker.RunBackground(runCtx, w, cfg.Service.DecisionInterval)

	healthServer := health.NewServer(cfg.Service.HealthPort, checks, guard, pw)
	errCh := make(chan error, 1)
	go func() {
		errCh <- healthServer.Start()
	}()
	healthServer.SetReady(true)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("shutting down decision service")
	stopWorker()
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Warn("health server shutdown failed", zap.Error(err))
	}
	pw.Stop(cfg.Service.ShutdownTimeout)

	if buffer != nil {
		if err := buffer.Close(shutdownCtx); err != nil {
			logger.Warn("failed to flush decision metrics", zap.Error(err))
		}
	}

	return serveErr
}

// filePortfolio reads a single number from path on every call
func filePortfolio(path string) decision.PortfolioFunc {
	return func(ctx context.Context) (float64, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid portfolio value in %s: %w", path, err)
		}
		if value <= 0 {
			return 0, fmt.Errorf("invalid portfolio value in %s: %.2f", path, value)
		}
		return value, nil
	}
}

// initGuard builds the risk guard on the configured state backend
func initGuard(ctx context.Context, cfg *config.Config, checks map[string]health.Check) (*risk.Guard, func(), error) {
	var store risk.StateStore
	var redisCli *redisAdapter.Client
	var closers []func()
	opts := []risk.GuardOption{risk.WithGuardID(cfg.State.GuardID)}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.State.Backend == "redis" || cfg.Redis.UseLock {
		client, err := redisAdapter.New(ctx, &cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		redisCli = client
		closers = append(closers, func() { client.Close() })
		checks["redis"] = client.Health
	}

	switch cfg.State.Backend {
	case "file":
		store = risk.NewFileStore(cfg.State.Path)
	case "memory":
		store = risk.NewMemoryStore(nil)
	case "redis":
		store = redisCli.StateStore(cfg.State.GuardID)
	case "postgres":
		db, err := database.New(ctx, &cfg.Database)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })
		checks["database"] = db.Health

		if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
			cleanup()
			return nil, nil, err
		}
		store = risk.NewPostgresStore(db.DB(), cfg.State.GuardID)
		opts = append(opts, risk.WithEventRecorder(risk.NewRepository(db.DB())))
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown state backend: %q", cfg.State.Backend)
	}

	if cfg.Redis.UseLock {
		opts = append(opts, risk.WithLocker(redisCli.GuardLock(cfg.State.GuardID)))
	}

	guard, err := risk.NewGuard(ctx, &cfg.Risk, store, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Info("risk guard ready",
		zap.String("backend", cfg.State.Backend),
		zap.String("guard", cfg.State.GuardID),
		zap.Bool("distributed_lock", cfg.Redis.UseLock),
	)

	return guard, cleanup, nil
}

// openSource picks CSV or ClickHouse candles. The ClickHouse handle is
// returned whenever it is enabled so decisions can be recorded there.
func openSource(ctx context.Context, cfg *config.Config, opts options, checks map[string]health.Check) (market.Source, *database.DB, func(), error) {
	var chDB *database.DB
	closeFn := func() {}

	if cfg.ClickHouse.Enabled {
		db, err := database.NewClickHouse(ctx, &cfg.ClickHouse)
		if err != nil {
			return nil, nil, nil, err
		}
		chDB = db
		closeFn = func() { db.Close() }
		checks["clickhouse"] = db.Health
	}

	switch {
	case opts.csvPath != "":
		return market.NewCSVSource(opts.csvPath), chDB, closeFn, nil
	case chDB != nil:
		return market.NewRepository(chDB.DB()), chDB, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("no market data: pass -csv or enable ClickHouse")
	}
}
