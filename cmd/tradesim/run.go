package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tradesim/config"
	"tradesim/internal/backtest"
	"tradesim/internal/execution"
	"tradesim/internal/logger"
	"tradesim/internal/markethours"
	"tradesim/internal/metrics"
	"tradesim/internal/pricesource"
	"tradesim/internal/report"
	redisstore "tradesim/internal/store/redis"
	sqlitestore "tradesim/internal/store/sqlite"
	"tradesim/internal/strategy"
)

type runFlags struct {
	source    string
	end       string
	noCache   bool
	noJournal bool
	verbose   bool
}

func newRunCmd(mode, short string) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   mode + " TICKER...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTickers(cmd.Context(), backtest.Mode(mode), args, f)
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "polygon", "price source: polygon or sqlite")
	cmd.Flags().StringVar(&f.end, "end", "", "last day of history, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the CSV and Redis caches")
	cmd.Flags().BoolVar(&f.noJournal, "no-journal", false, "do not record fills in the trade journal")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "list every position")
	return cmd
}

// loadConfig reads and validates configuration and installs the logger.
func loadConfig(service string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.InitWriter(os.Stderr, service, level), nil
}

func runTickers(parent context.Context, mode backtest.Mode, args []string, f runFlags) error {
	cfg, lg, err := loadConfig("tradesim-" + string(mode))
	if err != nil {
		return err
	}
	loc, err := markethours.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	mult, span, err := pricesource.ParseInterval(cfg.Interval)
	if err != nil {
		return err
	}
	var end time.Time
	if f.end != "" {
		if end, err = time.ParseInLocation("2006-01-02", f.end, loc); err != nil {
			return fmt.Errorf("--end: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	runID := logger.GenerateRunID()
	ctx = logger.WithRunID(ctx, runID)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, health)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	src, closeSource, err := buildSource(ctx, cfg, f, loc, m, health)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := []backtest.Option{backtest.WithLogger(lg), backtest.WithMetrics(m)}
	if !f.noJournal {
		if err := ensureDir(cfg.JournalPath); err != nil {
			return err
		}
		journal, err := execution.NewJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer journal.Close()
		health.CheckSQLite(ctx, journal.DB())
		opts = append(opts, backtest.WithJournal(journal))
	}

	runner, err := backtest.NewRunner(backtest.Config{
		Mode:        mode,
		Capital:     cfg.Capital,
		Commission:  cfg.Commission,
		Days:        cfg.Days,
		Multiplier:  mult,
		Timespan:    span,
		End:         end,
		Concurrency: cfg.Concurrency,
	}, src, strategy.NewSMACrossoverFactory(strings.ToUpper(cfg.Average), cfg.SMAPeriod, strategy.WithLogger(lg)), opts...)
	if err != nil {
		return err
	}

	tickers := make([]string, len(args))
	for i, a := range args {
		tickers[i] = strings.ToUpper(a)
	}

	lg.Info("starting", slog.String("run_id", runID), slog.Any("tickers", tickers),
		slog.String("source", src.Name()), slog.String("market", markethours.StatusString(time.Now().In(loc))))
	health.RunStarted()
	results, err := runner.RunAll(ctx, tickers)
	health.RunFinished()
	if err != nil {
		return err
	}

	out := os.Stdout
	fmt.Fprintf(out, "%s run %s\n", mode, runID)
	if f.verbose {
		for _, res := range results {
			if err := report.RenderPositions(out, res.Ticker, res.Positions); err != nil {
				return err
			}
		}
	}
	return report.Render(out, backtest.Summaries(results))
}

// buildSource assembles the fetch chain: CSV day cache, then Redis, then
// the provider. The returned func releases whatever was opened.
func buildSource(ctx context.Context, cfg *config.Config, f runFlags, loc *time.Location, m *metrics.Metrics, health *metrics.HealthStatus) (pricesource.Source, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch f.source {
	case "sqlite":
		bars, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { bars.Close() })
		health.CheckSQLite(ctx, bars.DB())
		return pricesource.NewTimed(pricesource.NewStore(bars, loc), m), closeAll, nil

	case "polygon":
		var src pricesource.Source = pricesource.NewTimed(pricesource.NewPolygon(pricesource.PolygonConfig{
			APIKey:  cfg.PolygonAPIKey,
			BaseURL: cfg.PolygonBaseURL,
			Debug:   strings.EqualFold(cfg.LogLevel, "debug"),
		}, loc), m)
		if f.noCache {
			return src, closeAll, nil
		}

		if cfg.RedisAddr != "" {
			cache, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
			if err != nil {
				// A cache outage only costs a refetch.
				log.Printf("[tradesim] redis cache disabled: %v", err)
			} else {
				closers = append(closers, func() { cache.Close() })
				health.CheckRedis(ctx, cache.Client())
				src = pricesource.NewRedisCache(cache, src, loc,
					pricesource.WithTTL(cfg.RedisTTL), pricesource.WithMetrics(m))
			}
		}
		return pricesource.NewCSVCache(cfg.CacheDir, src, loc, pricesource.WithMetrics(m)), closeAll, nil

	default:
		return nil, closeAll, fmt.Errorf("unknown source %q (want polygon or sqlite)", f.source)
	}
}
