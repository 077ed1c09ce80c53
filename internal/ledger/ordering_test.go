package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/model"
)

// gatedAssets holds every payout until release is closed.
type gatedAssets struct {
	*asset.MemoryLedger
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAssets) TransferOut(ctx context.Context, token, to common.Address, amount *uint256.Int) error {
	return g.TransferOutBatch(ctx, to, []model.AssetTransfer{{Asset: token, Amount: amount}})
}

func (g *gatedAssets) TransferOutBatch(ctx context.Context, to common.Address, transfers []model.AssetTransfer) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryLedger.TransferOutBatch(ctx, to, transfers)
}

func TestSlashWaitsForInFlightWithdrawal(t *testing.T) {
	clock := &fakeClock{now: genesis}
	assets := asset.NewMemoryLedger(custody)
	gated := &gatedAssets{MemoryLedger: assets, entered: make(chan struct{}, 1), release: make(chan struct{})}
	sys := NewSystem(Config{}, gated, FlagVerifier{}, NewRecorder(0), WithClock(clock.Now))
	_, err := sys.Pools.CreatePool(poolP1)
	require.NoError(t, err)
	f := &fixture{System: sys, assets: assets, clock: clock}

	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 100)
	require.NoError(t, f.Slashing.Enroll(operator1, authority))

	type result struct {
		payout Payout
		err    error
	}
	withdrawn := make(chan result, 1)
	go func() {
		payout, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
		withdrawn <- result{payout, err}
	}()
	<-gated.entered

	slashed := make(chan error, 1)
	go func() {
		slashed <- f.Slashing.Slash(ctxBg, authority, operator1, validProof)
	}()
	select {
	case err := <-slashed:
		t.Fatalf("slash finished while a withdrawal was paying out: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	res := <-withdrawn
	require.NoError(t, res.err)
	require.NoError(t, <-slashed)
	require.False(t, res.payout.Forfeited)
	requireShares(t, 100, res.payout.Paid)
	require.True(t, f.Slashing.IsSlashed(operator1))

	events := f.Recorder.Drain()
	require.GreaterOrEqual(t, len(events), 2)
	paid, slash := events[len(events)-2], events[len(events)-1]
	require.Equal(t, model.EventWithdrawn, paid.Kind)
	require.False(t, paid.Forfeited)
	require.Equal(t, model.EventOperatorSlashed, slash.Kind)
	require.Less(t, paid.Sequence, slash.Sequence)
	require.NoError(t, f.CheckInvariants())
}
