package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"restakeLedger/internal/audit"
	"restakeLedger/internal/chain"
	"restakeLedger/internal/config"
	"restakeLedger/internal/storage"
)

func runAudit(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAudit(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Custody) {
		return fmt.Errorf("custody address is required")
	}
	pools := make([]common.Address, 0, len(cfg.Pools))
	for _, raw := range cfg.Pools {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("invalid pool address: %s", raw)
		}
		pools = append(pools, common.HexToAddress(raw))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, ok, err := (&storage.FileSnapshotStore{Path: cfg.StateFile}).Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot not found: %s", cfg.StateFile)
	}

	retry := chain.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		MaxBackoff: cfg.MaxBackoff,
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL, retry)
	if err != nil {
		return err
	}
	defer client.Close()

	head, err := client.Head(ctx, cfg.Block)
	if err != nil {
		return err
	}

	logger.Info("audit start",
		zap.String("chain_id", head.ChainID.String()),
		zap.Uint64("block", head.Number),
		zap.Uint64("block_time", head.Time),
		zap.String("custody", cfg.Custody),
		zap.Uint64("snapshot_sequence", snap.Sequence),
	)

	auditor := audit.NewAuditor(audit.Config{
		Custody: common.HexToAddress(cfg.Custody),
		Pools:   pools,
		Block:   head.Number,
		Retry:   retry,
	}, client, logger.Named("audit"))

	reports, err := auditor.Run(ctx, snap)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return err
	}

	if short := audit.Short(reports); len(short) > 0 {
		for _, report := range short {
			logger.Warn("custody shortfall",
				zap.String("pool", report.Asset),
				zap.String("liabilities", report.Liabilities),
				zap.String("custody_balance", report.CustodyBalance),
				zap.String("shortfall", report.Shortfall),
			)
		}
		return fmt.Errorf("%d pools are under-collateralized", len(short))
	}
	return nil
}
