package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"restakeLedger/internal/asset"
)

func TestCreatePool(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.Pools.CreatePool(poolP1)
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, ClassInput, ClassOf(err))

	_, err = f.Pools.CreatePool(common.Address{})
	require.ErrorIs(t, err, ErrZeroAddress)

	require.Equal(t, []PoolID{poolP1, poolP2}, f.Pools.Pools())
	pool, ok := f.Pools.Pool(poolP2)
	require.True(t, ok)
	require.Equal(t, poolP2, pool.Asset())
}

func TestSetPoolWeightTracksTotal(t *testing.T) {
	f := newFixture(t, Config{})

	require.NoError(t, f.Pools.SetPoolWeight(poolP1, 30))
	require.NoError(t, f.Pools.SetPoolWeight(poolP2, 70))
	require.Equal(t, uint64(100), f.Pools.TotalWeight())

	require.NoError(t, f.Pools.SetPoolWeight(poolP1, 10))
	require.Equal(t, uint64(80), f.Pools.TotalWeight())
	weight, err := f.Pools.Weight(poolP1)
	require.NoError(t, err)
	require.Equal(t, uint64(10), weight)

	err = f.Pools.SetPoolWeight(poolP1, math.MaxUint64)
	require.ErrorIs(t, err, ErrAmountOverflow)
	require.Equal(t, uint64(80), f.Pools.TotalWeight())

	err = f.Pools.SetPoolWeight(common.HexToAddress("0xdead"), 1)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestPoolCreditRequiresOwningLedger(t *testing.T) {
	f := newFixture(t, Config{})
	f.fund(t, staker, poolP1, 10)

	other := NewDelegationLedger(Config{}, NewPoolRegistry(asset.NopLedger{}), NewSlashingRegistry(nil))
	pool, ok := f.Pools.Pool(poolP1)
	require.True(t, ok)

	err := pool.creditDeposit(ctxBg, other, staker, uint256.NewInt(10))
	require.ErrorIs(t, err, ErrUnauthorized)
	err = pool.debitWithdrawal(ctxBg, nil, staker, uint256.NewInt(10))
	require.True(t, errors.Is(err, ErrUnauthorized))
	require.Equal(t, uint64(10), f.assets.BalanceOf(poolP1, staker).Uint64())

	require.NoError(t, pool.creditDeposit(ctxBg, f.Ledger, staker, uint256.NewInt(10)))
	require.Equal(t, uint64(10), f.assets.BalanceOf(poolP1, custody).Uint64())
}

func TestPoolRegistryBindsOnce(t *testing.T) {
	registry := NewPoolRegistry(asset.NopLedger{})
	slashing := NewSlashingRegistry(nil)
	NewDelegationLedger(Config{}, registry, slashing)

	require.Panics(t, func() {
		NewDelegationLedger(Config{}, registry, slashing)
	})
}

func TestSlashingRegistrySerializesWithOneLedger(t *testing.T) {
	slashing := NewSlashingRegistry(nil)
	NewDelegationLedger(Config{}, NewPoolRegistry(asset.NopLedger{}), slashing)

	require.Panics(t, func() {
		NewDelegationLedger(Config{}, NewPoolRegistry(asset.NopLedger{}), slashing)
	})
}
