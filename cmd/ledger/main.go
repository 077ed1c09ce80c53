package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/config"
	"restakeLedger/internal/ledger"
	"restakeLedger/internal/runner"
	"restakeLedger/internal/storage"
	"restakeLedger/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Restaking share ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply an operation script to a fresh ledger and journal the events",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("script", "", "operation script JSONL")
	simulateCmd.Flags().String("out", "./data/events.jsonl", "event journal JSONL path")
	simulateCmd.Flags().String("state-file", "./data/snapshot.json", "snapshot file path (empty disables)")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and snapshot")
	simulateCmd.Flags().Int("batch-size", 500, "events per journal flush")
	simulateCmd.Flags().String("start-time", "", "script clock start (unix seconds or RFC3339), empty means now")
	simulateCmd.Flags().Duration("default-unbonding", 7*24*time.Hour, "unbonding period for unregistered operators")
	simulateCmd.Flags().String("queued-slash-policy", "forfeit-at-payout", "queued withdrawal slash policy (forfeit-at-payout, honor-queued)")
	simulateCmd.Flags().String("proof-mode", "flag", "slash proof verification (flag, equivocation)")
	simulateCmd.Flags().String("owner", "", "admin owner address")
	simulateCmd.Flags().String("custody", "0x000000000000000000000000000000000000c0de", "custody account in the simulated asset ledger")
	simulateCmd.Flags().Bool("fail-fast", false, "stop at the first rejected or unexpected operation")
	simulateCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100)")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild ledger state from an event journal",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "./data/events.jsonl", "event journal JSONL path")
	replayCmd.Flags().String("state-file", "", "snapshot to resume from and overwrite")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store the rebuilt snapshot")
	replayCmd.Flags().Int("batch-size", 500, "events per database batch")
	replayCmd.Flags().Duration("default-unbonding", 7*24*time.Hour, "unbonding period for unregistered operators")
	replayCmd.Flags().String("queued-slash-policy", "forfeit-at-payout", "queued withdrawal slash policy (forfeit-at-payout, honor-queued)")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare pool liabilities with on-chain custody balances",
		RunE:  runAudit,
	}

	auditCmd.Flags().String("rpc", "", "RPC URL")
	auditCmd.Flags().String("state-file", "./data/snapshot.json", "ledger snapshot to audit")
	auditCmd.Flags().String("custody", "", "custody address holding pool assets")
	auditCmd.Flags().StringSlice("pool", nil, "pools to audit (comma-separated), default all")
	auditCmd.Flags().Uint64("block", 0, "block to audit at, 0 means latest")
	auditCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	auditCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	auditCmd.Flags().Duration("retry-max-backoff", 10*time.Second, "retry backoff cap")
	auditCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(auditCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}
	if !common.IsHexAddress(cfg.Owner) {
		return fmt.Errorf("owner address is required")
	}
	if !common.IsHexAddress(cfg.Custody) {
		return fmt.Errorf("invalid custody address: %s", cfg.Custody)
	}
	policy, err := ledger.ParseQueuedSlashPolicy(cfg.QueuedSlashPolicy)
	if err != nil {
		return err
	}
	if err := ledger.ValidatePeriod(cfg.DefaultUnbonding); err != nil {
		return fmt.Errorf("default-unbonding: %w", err)
	}
	verifier, err := ledger.NewProofVerifier(cfg.ProofMode)
	if err != nil {
		return err
	}

	ops, err := runner.ReadScript(cfg.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	journal := storage.NewJsonlStorage(cfg.Out)
	if err := journal.Reset(); err != nil {
		return err
	}

	var store runner.EventStore
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		store = pg
	}

	r := runner.NewRunner(runner.RunConfig{
		Ledger: ledger.Config{
			DefaultUnbondingPeriod: cfg.DefaultUnbonding,
			QueuedSlashPolicy:      policy,
		},
		StartTime: cfg.StartTime,
		Owner:     common.HexToAddress(cfg.Owner),
		BatchSize: cfg.BatchSize,
		FailFast:  cfg.FailFast,
	}, asset.NewMemoryLedger(common.HexToAddress(cfg.Custody)), verifier, journal, store, &storage.FileSnapshotStore{Path: cfg.StateFile}, logger)

	logger.Info("simulate start",
		zap.String("script", cfg.Script),
		zap.Int("ops", len(ops)),
		zap.String("out", cfg.Out),
		zap.String("state_file", cfg.StateFile),
		zap.Bool("postgres", store != nil),
		zap.String("queued_slash_policy", string(policy)),
		zap.String("proof_mode", cfg.ProofMode),
		zap.Bool("fail_fast", cfg.FailFast),
	)

	summary, err := r.Run(ctx, ops)
	if err != nil {
		return err
	}

	for _, pool := range summary.Snapshot.Pools {
		logger.Info("pool",
			zap.String("pool", pool.Asset),
			zap.Uint64("weight", pool.Weight),
			zap.String("total_shares", pool.TotalShares),
			zap.String("forfeited", pool.Forfeited),
		)
	}
	if summary.Mismatched > 0 {
		return fmt.Errorf("%d operations did not match their expected outcome", summary.Mismatched)
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics server start", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
