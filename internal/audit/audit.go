package audit

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"restakeLedger/internal/chain"
	"restakeLedger/internal/ledger"
	"restakeLedger/internal/model"
	"restakeLedger/internal/token"
)

// Config holds audit settings.
type Config struct {
	Custody common.Address
	Pools   []common.Address
	Block   uint64
	Retry   chain.RetryPolicy
}

// Auditor checks that custody holds enough of each pool asset to cover
// outstanding and forfeited shares.
type Auditor struct {
	cfg    Config
	caller token.Caller
	cache  *token.MetaCache
	logger *zap.Logger
}

func NewAuditor(cfg Config, caller token.Caller, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{cfg: cfg, caller: caller, cache: token.NewMetaCache(), logger: logger}
}

// Run audits every pool in snap, or only cfg.Pools when set. The returned
// error is nil even when pools are short; callers inspect Shortfall.
func (a *Auditor) Run(ctx context.Context, snap model.LedgerSnapshot) ([]model.PoolAudit, error) {
	if a.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	wanted := make(map[common.Address]struct{}, len(a.cfg.Pools))
	for _, pool := range a.cfg.Pools {
		wanted[pool] = struct{}{}
	}
	var block *big.Int
	if a.cfg.Block > 0 {
		block = new(big.Int).SetUint64(a.cfg.Block)
	}

	out := make([]model.PoolAudit, 0, len(snap.Pools))
	for _, rec := range snap.Pools {
		if !common.IsHexAddress(rec.Asset) {
			return nil, fmt.Errorf("invalid pool address %q", rec.Asset)
		}
		asset := common.HexToAddress(rec.Asset)
		if len(wanted) > 0 {
			if _, ok := wanted[asset]; !ok {
				continue
			}
		}

		report, err := a.auditPool(ctx, asset, rec, block)
		if err != nil {
			return nil, fmt.Errorf("audit pool %s: %w", asset.Hex(), err)
		}
		fields := []zap.Field{
			zap.String("pool", report.Asset),
			zap.String("symbol", report.Token.Symbol),
			zap.String("liabilities", report.Liabilities),
			zap.String("custody_balance", report.CustodyBalance),
		}
		if report.Shortfall != "" {
			a.logger.Warn("custody shortfall", append(fields, zap.String("shortfall", report.Shortfall))...)
		} else {
			a.logger.Info("pool covered", fields...)
		}
		out = append(out, report)
	}
	return out, nil
}

func (a *Auditor) auditPool(ctx context.Context, asset common.Address, rec model.PoolRecord, block *big.Int) (model.PoolAudit, error) {
	total, err := ledger.ParseAmount(rec.TotalShares)
	if err != nil {
		return model.PoolAudit{}, fmt.Errorf("total shares: %w", err)
	}
	forfeited, err := ledger.ParseAmount(rec.Forfeited)
	if err != nil {
		return model.PoolAudit{}, fmt.Errorf("forfeited: %w", err)
	}
	liabilities, overflow := new(uint256.Int).AddOverflow(total, forfeited)
	if overflow {
		return model.PoolAudit{}, ledger.ErrAmountOverflow
	}

	var meta model.TokenMeta
	err = a.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		meta, err = a.cache.Lookup(ctx, a.caller, asset, a.logger)
		if err != nil {
			a.logger.Warn("token metadata fetch failed", zap.String("token", asset.Hex()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return model.PoolAudit{}, err
	}

	var balance *uint256.Int
	err = a.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		balance, err = token.BalanceOf(ctx, a.caller, asset, a.cfg.Custody, block)
		if err != nil {
			a.logger.Warn("custody balance fetch failed", zap.String("token", asset.Hex()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return model.PoolAudit{}, err
	}

	report := model.PoolAudit{
		Asset:          asset.Hex(),
		Token:          meta,
		Block:          a.cfg.Block,
		TotalShares:    ledger.FormatAmount(total),
		Forfeited:      ledger.FormatAmount(forfeited),
		Liabilities:    ledger.FormatAmount(liabilities),
		CustodyBalance: ledger.FormatAmount(balance),
		CustodyDisplay: strings.TrimSpace(token.FormatAmount(balance, meta.Decimals) + " " + meta.Symbol),
	}
	if balance.Lt(liabilities) {
		report.Shortfall = ledger.FormatAmount(new(uint256.Int).Sub(liabilities, balance))
	}
	return report, nil
}

// Short returns the audits that found a shortfall.
func Short(reports []model.PoolAudit) []model.PoolAudit {
	var out []model.PoolAudit
	for _, report := range reports {
		if report.Shortfall != "" {
			out = append(out, report)
		}
	}
	return out
}
