package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/trader-core/internal/adapters/clickhouse"
	"github.com/selivandex/trader-core/internal/adapters/config"
	"github.com/selivandex/trader-core/internal/adapters/database"
	"github.com/selivandex/trader-core/internal/adapters/market"
	"github.com/selivandex/trader-core/internal/backtest"
	"github.com/selivandex/trader-core/internal/forecast"
	"github.com/selivandex/trader-core/pkg/logger"
	"github.com/selivandex/trader-core/pkg/models"
)

type options struct {
	symbol      string
	from        time.Time
	to          time.Time
	horizon     int
	csvPath     string
	concurrency int
	fundScore   float64
	fundMult    float64
	save        bool
}

func main() {
	var (
		symbol      = flag.String("symbol", "SPY", "Symbol to backtest")
		fromDate    = flag.String("from", "2024-01-01", "Start date (YYYY-MM-DD)")
		toDate      = flag.String("to", "2024-06-30", "End date (YYYY-MM-DD)")
		horizon     = flag.Int("horizon", 0, "Forecast horizon in trading days (0 = config default)")
		csvPath     = flag.String("csv", "", "Read candles from CSV instead of ClickHouse")
		concurrency = flag.Int("concurrency", 0, "Decision dates evaluated in parallel (0 = config default)")
		fundScore   = flag.Float64("fund-score", 0, "Fundamental score recorded with each sample")
		fundMult    = flag.Float64("fund-mult", 0, "Fundamental confidence multiplier (0 = none)")
		save        = flag.Bool("save", true, "Store samples in ClickHouse when enabled")
	)
	flag.Parse()

	start, err := time.Parse(time.DateOnly, *fromDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid start date: %v\n", err)
		os.Exit(1)
	}
	end, err := time.Parse(time.DateOnly, *toDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid end date: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, stopping backtest...")
		cancel()
	}()

	opts := options{
		symbol:      *symbol,
		from:        start,
		to:          end,
		horizon:     *horizon,
		csvPath:     *csvPath,
		concurrency: *concurrency,
		fundScore:   *fundScore,
		fundMult:    *fundMult,
		save:        *save,
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

	btCfg := backtest.Config{
		Symbol:      opts.symbol,
		StartDate:   opts.from,
		EndDate:     opts.to,
		Horizon:     cfg.Backtest.Horizon,
		MinHistory:  cfg.Backtest.MinHistory,
		Step:        cfg.Backtest.Step,
		Concurrency: cfg.Backtest.Concurrency,
	}
	if cfg.Backtest.AnchorSunday {
		sunday := time.Sunday
		btCfg.Anchor = &sunday
	}
	if opts.horizon > 0 {
		btCfg.Horizon = opts.horizon
	}
	if opts.concurrency > 0 {
		btCfg.Concurrency = opts.concurrency
	}

	var chDB *database.DB
	if cfg.ClickHouse.Enabled {
		chDB, err = database.NewClickHouse(ctx, &cfg.ClickHouse)
		if err != nil {
			return err
		}
		defer chDB.Close()
	}

	var source market.Source
	switch {
	case opts.csvPath != "":
		source = market.NewCSVSource(opts.csvPath)
	case chDB != nil:
		source = market.NewRepository(chDB.DB())
	default:
		return fmt.Errorf("no market data: pass -csv or enable ClickHouse")
	}

	// History before the window feeds the models; bars after it realize the last forecasts
	loadFrom := opts.from.AddDate(-1, 0, 0)
	loadTo := opts.to.AddDate(0, 0, btCfg.Horizon*2+7)

	series, err := source.Candles(ctx, opts.symbol, loadFrom, loadTo)
	if err != nil {
		return fmt.Errorf("failed to load candles: %w", err)
	}

	logger.Info("candles loaded",
		zap.String("symbol", opts.symbol),
		zap.Int("bars", len(series)),
	)

	ensemble, err := forecast.NewDefaultEnsemble(&cfg.Ensemble)
	if err != nil {
		return err
	}

	var fundamentals *models.Fundamentals
	if opts.fundMult > 0 {
		fundamentals = &models.Fundamentals{Score: opts.fundScore, ConfidenceMultiplier: opts.fundMult}
	}

	fmt.Printf("\nRunning walk-forward backtest for %s...\n", opts.symbol)
	fmt.Printf("Period: %s to %s, horizon %d days\n", opts.from.Format(time.DateOnly), opts.to.Format(time.DateOnly), btCfg.Horizon)

	report, err := backtest.NewWalkForward(ensemble).Run(ctx, series, btCfg, fundamentals)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	report.Print(os.Stdout)

	if !report.NoData() {
		fmt.Println("\nRECOMMENDATION:")
		switch m := report.Metrics; {
		case m.DirectionAccuracy >= 55 && m.WinRate >= 50:
			fmt.Println("GOOD - forecasts call direction better than chance")
		case m.DirectionAccuracy < 40:
			fmt.Println("POOR - direction calls are worse than chance")
		default:
			fmt.Println("MEDIOCRE - more history needed")
		}
	}

	if chDB != nil && opts.save && !report.NoData() {
		repo := clickhouse.NewRepository(chDB.DB())
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		runID := clickhouse.RunID(report)
		if err := repo.SaveBacktestSamples(ctx, runID, report); err != nil {
			return err
		}
		fmt.Printf("\nSamples stored in ClickHouse as run %s\n", runID)
	}

	return nil
}
