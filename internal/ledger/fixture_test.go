package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/model"
)

var (
	custody   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	poolP1    = common.HexToAddress("0x000000000000000000000000000000000000a001")
	poolP2    = common.HexToAddress("0x000000000000000000000000000000000000a002")
	staker    = common.HexToAddress("0x0000000000000000000000000000000000005001")
	staker2   = common.HexToAddress("0x0000000000000000000000000000000000005002")
	operator1 = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	operator2 = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	authority = common.HexToAddress("0x0000000000000000000000000000000000000a07")
)

var (
	genesis    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctxBg      = context.Background()
	tick       = time.Minute
	validProof = model.SlashProof{Valid: true}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	*System
	assets *asset.MemoryLedger
	clock  *fakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := &fakeClock{now: genesis}
	assets := asset.NewMemoryLedger(custody)
	sys := NewSystem(cfg, assets, FlagVerifier{}, NewRecorder(0), WithClock(clock.Now))
	for _, id := range []PoolID{poolP1, poolP2} {
		_, err := sys.Pools.CreatePool(id)
		require.NoError(t, err)
	}
	return &fixture{System: sys, assets: assets, clock: clock}
}

// fund mints and approves amount of pool's asset for holder.
func (f *fixture) fund(t *testing.T, holder common.Address, id PoolID, amount uint64) {
	t.Helper()
	require.NoError(t, f.assets.Mint(id, holder, uint256.NewInt(amount)))
	f.assets.Approve(id, holder, new(uint256.Int).Add(f.assets.Allowance(id, holder), uint256.NewInt(amount)))
}

func (f *fixture) stake(t *testing.T, holder common.Address, id PoolID, amount uint64) {
	t.Helper()
	f.fund(t, holder, id, amount)
	require.NoError(t, f.Ledger.StakeToPool(ctxBg, holder, id, uint256.NewInt(amount)))
}

func (f *fixture) slash(t *testing.T, operator common.Address) {
	t.Helper()
	require.NoError(t, f.Slashing.Enroll(operator, authority))
	require.NoError(t, f.Slashing.Slash(ctxBg, authority, operator, validProof))
}

func requireShares(t *testing.T, want uint64, got *uint256.Int) {
	t.Helper()
	require.True(t, got.IsUint64(), "shares %s", FormatAmount(got))
	require.Equal(t, want, got.Uint64())
}
