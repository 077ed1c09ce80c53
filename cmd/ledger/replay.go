package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"restakeLedger/internal/config"
	"restakeLedger/internal/ledger"
	"restakeLedger/internal/model"
	"restakeLedger/internal/replay"
	"restakeLedger/internal/storage"
	"restakeLedger/internal/storage/postgres"
)

const replayStateName = "replay"

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	policy, err := ledger.ParseQueuedSlashPolicy(cfg.QueuedSlashPolicy)
	if err != nil {
		return err
	}
	if err := ledger.ValidatePeriod(cfg.DefaultUnbonding); err != nil {
		return fmt.Errorf("default-unbonding: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := storage.ReadEvents(cfg.In)
	if err != nil {
		return err
	}

	snapshots := &storage.FileSnapshotStore{Path: cfg.StateFile}
	var base *model.LedgerSnapshot
	snap, ok, err := snapshots.Load(ctx)
	if err != nil {
		return err
	}
	if ok {
		base = &snap
		logger.Info("resume from snapshot", zap.String("state_file", cfg.StateFile), zap.Uint64("sequence", snap.Sequence))
	}

	replayer := replay.NewReplayer(ledger.Config{
		DefaultUnbondingPeriod: cfg.DefaultUnbonding,
		QueuedSlashPolicy:      policy,
	}, logger.Named("replay"))

	result, err := replayer.Replay(ctx, base, events)
	if err != nil {
		return err
	}

	if err := snapshots.Save(ctx, result.Snapshot); err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		if err := storeReplay(ctx, cfg, events, result.Snapshot); err != nil {
			return err
		}
	}

	logger.Info("replay done",
		zap.String("in", cfg.In),
		zap.Int("events", len(events)),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Uint64("sequence", result.Snapshot.Sequence),
		zap.Int("pools", len(result.Snapshot.Pools)),
		zap.Int("stakers", len(result.Snapshot.Stakers)),
	)
	return nil
}

func storeReplay(ctx context.Context, cfg config.ReplayConfig, events []model.LedgerEvent, snap model.LedgerSnapshot) error {
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(events)
	}
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := store.InsertEvents(ctx, events[start:end]); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}

	if err := store.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return store.SaveState(ctx, replayStateName, snap.Sequence)
}
