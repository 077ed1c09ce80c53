package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/model"
)

func TestStakeThenWithdrawReturnsAmount(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 100)
	f.stake(t, staker, poolP1, 20)

	requireShares(t, 120, f.Ledger.Shares(staker, poolP1))
	requireShares(t, 120, f.Ledger.OperatorShares(operator1, poolP1))
	requireShares(t, 120, f.Ledger.TotalShares(poolP1))
	require.Equal(t, []PoolID{poolP1}, f.Ledger.PoolIndex(staker))

	payout, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.NoError(t, err)
	require.False(t, payout.Forfeited)
	requireShares(t, 120, payout.Paid)

	require.Equal(t, uint64(120), f.assets.BalanceOf(poolP1, staker).Uint64())
	require.True(t, f.assets.BalanceOf(poolP1, custody).IsZero())
	require.True(t, f.Ledger.Shares(staker, poolP1).IsZero())
	require.True(t, f.Ledger.OperatorShares(operator1, poolP1).IsZero())
	require.Empty(t, f.Ledger.PoolIndex(staker))
	require.NoError(t, f.CheckInvariants())
}

func TestStakeRejections(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.Ledger.StakeToPool(ctxBg, staker, poolP1, uint256.NewInt(0))
	require.ErrorIs(t, err, ErrNonPositiveAmount)
	err = f.Ledger.StakeToPool(ctxBg, staker, poolP1, nil)
	require.ErrorIs(t, err, ErrNonPositiveAmount)

	err = f.Ledger.StakeToPool(ctxBg, staker, common.HexToAddress("0xdead"), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrPoolNotFound)

	// No balance in the asset ledger: the transfer fails and nothing is credited.
	err = f.Ledger.StakeToPool(ctxBg, staker, poolP1, uint256.NewInt(5))
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)
	require.True(t, f.Ledger.Shares(staker, poolP1).IsZero())
	require.True(t, f.Ledger.TotalShares(poolP1).IsZero())
	require.Empty(t, f.Ledger.PoolIndex(staker))
	require.NoError(t, f.CheckInvariants())
}

func TestStakeOverflowRejected(t *testing.T) {
	sys := NewSystem(Config{}, asset.NopLedger{}, nil, nil)
	_, err := sys.Pools.CreatePool(poolP1)
	require.NoError(t, err)

	full := new(uint256.Int).SetAllOne()
	require.NoError(t, sys.Ledger.StakeToPool(ctxBg, staker, poolP1, full))
	err = sys.Ledger.StakeToPool(ctxBg, staker2, poolP1, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrAmountOverflow)
	require.True(t, sys.Ledger.Shares(staker2, poolP1).IsZero())
	require.NoError(t, sys.CheckInvariants())
}

func TestWithdrawWithoutPosition(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.ErrorIs(t, err, ErrNoPosition)
	require.Equal(t, ClassInput, ClassOf(err))
}

func TestUndelegatedStakeIsTrackedUnderZeroOperator(t *testing.T) {
	f := newFixture(t, Config{})
	f.stake(t, staker, poolP1, 40)

	_, delegated := f.Ledger.DelegateOf(staker)
	require.False(t, delegated)
	requireShares(t, 40, f.Ledger.OperatorShares(common.Address{}, poolP1))

	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	require.True(t, f.Ledger.OperatorShares(common.Address{}, poolP1).IsZero())
	requireShares(t, 40, f.Ledger.OperatorShares(operator1, poolP1))
	require.NoError(t, f.CheckInvariants())
}

func TestUndelegatedEventsLeaveOperatorEmpty(t *testing.T) {
	f := newFixture(t, Config{})
	f.stake(t, staker, poolP1, 10)
	_, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.NoError(t, err)
	f.stake(t, staker, poolP1, 5)
	_, err = f.Ledger.QueueWithdrawal(staker)
	require.NoError(t, err)
	_, err = f.Ledger.CompleteWithdrawal(ctxBg, staker)
	require.NoError(t, err)

	var seen int
	for _, ev := range f.Recorder.Drain() {
		if ev.Staker != staker.Hex() {
			continue
		}
		seen++
		require.Empty(t, ev.Operator, "%s", ev.Kind)
	}
	require.Equal(t, 5, seen)
}

func TestRedelegationMovesEveryPool(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 50)
	f.stake(t, staker, poolP2, 30)

	require.NoError(t, f.Ledger.DelegateTo(staker, operator2))

	require.True(t, f.Ledger.OperatorShares(operator1, poolP1).IsZero())
	require.True(t, f.Ledger.OperatorShares(operator1, poolP2).IsZero())
	requireShares(t, 50, f.Ledger.OperatorShares(operator2, poolP1))
	requireShares(t, 30, f.Ledger.OperatorShares(operator2, poolP2))
	delegate, ok := f.Ledger.DelegateOf(staker)
	require.True(t, ok)
	require.Equal(t, operator2, delegate)
	require.NoError(t, f.CheckInvariants())
}

func TestRedelegationAbortLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 50)
	f.stake(t, staker, poolP2, 30)
	before := f.Snapshot()

	moves := 0
	abort := errors.New("abort")
	f.Ledger.beforeMove = func(PoolID) error {
		moves++
		if moves == 2 {
			return abort
		}
		return nil
	}

	err := f.Ledger.DelegateTo(staker, operator2)
	require.ErrorIs(t, err, abort)
	require.Equal(t, 2, moves)
	require.Equal(t, before, f.Snapshot())
	require.NoError(t, f.CheckInvariants())
}

func TestDelegateRejections(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.Ledger.DelegateTo(staker, common.Address{})
	require.ErrorIs(t, err, ErrZeroAddress)

	f.slash(t, operator2)
	err = f.Ledger.DelegateTo(staker, operator2)
	require.ErrorIs(t, err, ErrOperatorSlashed)
	require.Equal(t, ClassPolicy, ClassOf(err))

	require.NoError(t, f.Ledger.DelegateTo(staker2, operator1))
	f.slash(t, operator1)
	err = f.Ledger.DelegateTo(staker2, common.HexToAddress("0xb03"))
	require.ErrorIs(t, err, ErrStakerSlashed)
}

func TestDelegateRejectedWhileWithdrawalQueued(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 10)
	_, err := f.Ledger.QueueWithdrawal(staker)
	require.NoError(t, err)

	err = f.Ledger.DelegateTo(staker, operator2)
	require.ErrorIs(t, err, ErrWithdrawalPending)
	requireShares(t, 10, f.Ledger.OperatorShares(operator1, poolP1))
}

func TestSlashedDelegateForfeitsPayout(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 100)
	f.slash(t, operator1)

	payout, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.NoError(t, err)
	require.True(t, payout.Forfeited)
	require.True(t, payout.Paid.IsZero())
	requireShares(t, 100, payout.Shares)

	require.True(t, f.assets.BalanceOf(poolP1, staker).IsZero())
	require.True(t, f.Ledger.Shares(staker, poolP1).IsZero())
	require.True(t, f.Ledger.OperatorShares(operator1, poolP1).IsZero())
	requireShares(t, 100, f.Ledger.Forfeited(poolP1))
	require.Equal(t, uint64(100), f.assets.BalanceOf(poolP1, custody).Uint64())
	require.NoError(t, f.CheckInvariants())
}

func TestRegisterOperatorSetsUnbonding(t *testing.T) {
	f := newFixture(t, Config{DefaultUnbondingPeriod: time.Hour})

	require.Equal(t, time.Hour, f.Ledger.UnbondingPeriod(operator1))
	require.NoError(t, f.Ledger.RegisterOperator(operator1, 2*time.Hour))
	require.Equal(t, 2*time.Hour, f.Ledger.UnbondingPeriod(operator1))

	require.ErrorIs(t, f.Ledger.RegisterOperator(common.Address{}, time.Hour), ErrZeroAddress)
	require.ErrorIs(t, f.Ledger.RegisterOperator(operator2, -time.Second), ErrInvalidPeriod)
	require.ErrorIs(t, f.Ledger.RegisterOperator(operator2, 1500*time.Millisecond), ErrInvalidPeriod)
	require.Equal(t, time.Hour, f.Ledger.UnbondingPeriod(operator2))
	require.NoError(t, f.Ledger.RegisterOperator(operator2, 0))
}

func TestMutationsAreRecorded(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.Ledger.DelegateTo(staker, operator1))
	f.stake(t, staker, poolP1, 7)
	_, err := f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.NoError(t, err)
	_, err = f.Ledger.WithdrawFromPool(ctxBg, staker, poolP1)
	require.Error(t, err)

	events := f.Recorder.Drain()
	kinds := make([]model.EventKind, 0, len(events))
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Sequence)
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []model.EventKind{
		model.EventPoolCreated,
		model.EventPoolCreated,
		model.EventDelegated,
		model.EventStaked,
		model.EventWithdrawn,
	}, kinds)
	require.Equal(t, "7", events[3].Amount)
	require.Equal(t, operator1.Hex(), events[3].Operator)
	require.Zero(t, f.Recorder.Pending())
}
