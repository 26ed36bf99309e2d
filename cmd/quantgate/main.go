package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quantgate/internal/audit"
	"quantgate/internal/audit/postgres"
	"quantgate/internal/cache"
	"quantgate/internal/config"
	"quantgate/internal/data"
	"quantgate/internal/domain"
	"quantgate/internal/gates"
	"quantgate/internal/httpapi"
	"quantgate/internal/leverage"
	"quantgate/internal/metrics"
	"quantgate/internal/pipeline"
	"quantgate/internal/portfolio"
)

const (
	appName = "quantgate"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var (
		configPath   string
		pollInterval time.Duration
	)

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Risk-gated trading agent",
		Version: version,
		Long: `quantgate polls market data, runs upstream decisions through a
risk core (leverage advisor, capital allocator, order gate), and writes
an auditable record of every cycle. Paper mode simulates fills; live
mode requires an exchange executor.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/quantgate.yaml", "Path to YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polling agent",
		Long:  "Starts the polling loop: fetch, decide, gate, execute, audit. Blocks until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configPath, pollInterval)
		},
	}
	runCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Override poll interval from config")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the monitoring HTTP server only",
		Long:  "Serves /health and /metrics without running the trading loop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(configPath)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("OK: mode=%s symbols=%d poll_interval=%s\n", cfg.Mode, len(cfg.Symbols), cfg.PollInterval)
			return nil
		},
	}
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runAgent(configPath string, pollInterval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if pollInterval > 0 {
		cfg.PollInterval = pollInterval
	}
	if cfg.Mode == "live" {
		return fmt.Errorf("live mode requires an exchange executor; only paper mode is available")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	client, err := data.NewClient(cfg.Data, reg)
	if err != nil {
		return fmt.Errorf("failed to build data client: %w", err)
	}

	var fetcher data.Fetcher = client
	if cfg.Data.WSEnabled {
		feed := data.NewTickerFeed(cfg.Data.WSURL)
		if err := feed.Connect(ctx, cfg.Symbols); err != nil {
			// REST polling still works without the feed.
			log.Warn().Err(err).Msg("ticker feed unavailable, using REST prices only")
		} else {
			defer feed.Close()
			fetcher = data.NewEnrichingFetcher(client, feed)
		}
	}

	sink, closeSinks, err := buildAuditSink(cfg.Audit)
	if err != nil {
		return err
	}
	defer closeSinks()

	p := pipeline.New(pipeline.Params{
		Symbols:  cfg.Symbols,
		Mode:     cfg.Mode,
		Cache:    cache.New(reg),
		Fetcher:  fetcher,
		Provider: pipeline.HoldProvider{},
		Advisor:  leverage.NewAdvisor(),
		Alloc:    portfolio.NewAllocator(cfg.Risk, reg),
		Book:     portfolio.NewPositionBook(),
		Gate:     gates.NewOrderGate(cfg.Risk, reg),
		Executor: pipeline.NewPaperExecutor(),
		Sink:     sink,
		Metrics:  reg,
	})

	monitor := httpapi.NewServer(cfg.Monitor.Addr, cfg.Mode, reg)
	go func() {
		if err := monitor.Start(); err != nil {
			log.Error().Err(err).Msg("monitor server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		monitor.Shutdown(shutdownCtx)
	}()

	equity := domain.EquityState{
		Equity:        cfg.PaperEquity,
		AvailableCash: cfg.PaperEquity,
	}

	log.Info().Str("mode", cfg.Mode).Strs("symbols", cfg.Symbols).
		Dur("poll_interval", cfg.PollInterval).Msg("agent started")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.RunCycle(ctx, equity); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("shutting down")
				return nil
			}
			log.Error().Err(err).Msg("cycle failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func runMonitor(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := httpapi.NewServer(cfg.Monitor.Addr, cfg.Mode, metrics.NewRegistry())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		monitor.Shutdown(shutdownCtx)
	}()
	return monitor.Start()
}

// buildAuditSink assembles the JSONL writer plus the optional Postgres
// repository behind a single fanout sink.
func buildAuditSink(cfg config.AuditConfig) (audit.Sink, func(), error) {
	writer, err := audit.NewWriter(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	sinks := audit.MultiSink{writer}
	closers := []func(){func() { writer.Close() }}

	if cfg.PostgresDSN != "" {
		repo, err := postgres.Open(cfg.PostgresDSN, 5*time.Second)
		if err != nil {
			writer.Close()
			return nil, nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		sinks = append(sinks, repo.AsSink())
		closers = append(closers, func() { repo.Close() })
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
