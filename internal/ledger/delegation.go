package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// SlashStatus is the read-only view of slashing state the ledger consults.
type SlashStatus interface {
	IsSlashed(operator common.Address) bool
	SlashedAt(operator common.Address) (time.Time, bool)
}

// Config controls ledger policy.
type Config struct {
	// DefaultUnbondingPeriod applies to undelegated stakers and unregistered operators.
	DefaultUnbondingPeriod time.Duration
	QueuedSlashPolicy      QueuedSlashPolicy
}

// Payout is the result of closing one pool position.
type Payout struct {
	Pool      PoolID
	Shares    *uint256.Int
	Paid      *uint256.Int
	Forfeited bool
}

type positionKey struct {
	holder common.Address
	pool   PoolID
}

// DelegationLedger owns staker shares, delegations and operator delegated shares.
// Every mutation runs under one mutex, so operations are totally ordered.
type DelegationLedger struct {
	mu       sync.Mutex
	cfg      Config
	pools    *PoolRegistry
	slashing SlashStatus
	opts     options

	stakerShares   map[positionKey]uint256.Int
	operatorShares map[positionKey]uint256.Int
	totalShares    map[PoolID]uint256.Int
	forfeited      map[PoolID]uint256.Int
	delegation     map[common.Address]common.Address
	poolIndex      map[common.Address][]PoolID
	operators      map[common.Address]time.Duration
	pending        map[common.Address]WithdrawalRequest

	// beforeMove runs ahead of each per-pool move during redelegation.
	beforeMove func(pool PoolID) error
}

// NewDelegationLedger creates the ledger and binds it as the only party allowed
// to credit or debit pools in registry.
func NewDelegationLedger(cfg Config, registry *PoolRegistry, slashing SlashStatus, opts ...Option) *DelegationLedger {
	if cfg.QueuedSlashPolicy == "" {
		cfg.QueuedSlashPolicy = ForfeitAtPayout
	}
	l := &DelegationLedger{
		cfg:            cfg,
		pools:          registry,
		slashing:       slashing,
		opts:           buildOptions(opts),
		stakerShares:   make(map[positionKey]uint256.Int),
		operatorShares: make(map[positionKey]uint256.Int),
		totalShares:    make(map[PoolID]uint256.Int),
		forfeited:      make(map[PoolID]uint256.Int),
		delegation:     make(map[common.Address]common.Address),
		poolIndex:      make(map[common.Address][]PoolID),
		operators:      make(map[common.Address]time.Duration),
		pending:        make(map[common.Address]WithdrawalRequest),
	}
	registry.bind(l)
	if reg, ok := slashing.(*SlashingRegistry); ok {
		reg.serializeWith(&l.mu)
	}
	return l
}

// RegisterOperator records the unbonding period an operator imposes on its delegators.
// Re-registering updates the period for requests queued afterwards. Periods are
// journaled in seconds, so fractional seconds are rejected.
func (l *DelegationLedger) RegisterOperator(operator common.Address, unbondingPeriod time.Duration) error {
	if operator == (common.Address{}) {
		return l.reject("register_operator", ErrZeroAddress)
	}
	if err := ValidatePeriod(unbondingPeriod); err != nil {
		return l.reject("register_operator", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.operators[operator] = unbondingPeriod
	l.opts.recorder.record(model.LedgerEvent{
		Kind:          model.EventOperatorRegistered,
		Timestamp:     l.opts.clock().Unix(),
		Operator:      operator.Hex(),
		UnbondingSecs: int64(unbondingPeriod / time.Second),
	})
	l.opts.logger.Info("operator registered", zap.String("operator", operator.Hex()), zap.Duration("unbonding_period", unbondingPeriod))
	return nil
}

// DelegateTo points the staker's entire position at operator. Every pool's
// shares move from the old operator to the new one as a single unit.
func (l *DelegationLedger) DelegateTo(staker, operator common.Address) error {
	if operator == (common.Address{}) {
		return l.reject("delegate", ErrZeroAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, delegated := l.delegation[staker]
	if delegated && l.slashing.IsSlashed(current) {
		return l.reject("delegate", ErrStakerSlashed)
	}
	if l.slashing.IsSlashed(operator) {
		return l.reject("delegate", ErrOperatorSlashed)
	}
	if _, ok := l.pending[staker]; ok {
		return l.reject("delegate", ErrWithdrawalPending)
	}

	var undo undoLog
	if current != operator {
		for _, pool := range l.poolIndex[staker] {
			if l.beforeMove != nil {
				if err := l.beforeMove(pool); err != nil {
					undo.rollback()
					return fmt.Errorf("move %s: %w", pool.Hex(), err)
				}
			}
			shares := l.stakerShares[positionKey{staker, pool}]
			l.moveOperatorShares(&undo, current, operator, pool, shares)
		}
	}
	setEntry(&undo, l.delegation, staker, operator, false)

	redelegateCount.Inc()
	l.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventDelegated,
		Timestamp: l.opts.clock().Unix(),
		Staker:    staker.Hex(),
		Operator:  operator.Hex(),
	})
	l.opts.logger.Debug("delegated",
		zap.String("staker", staker.Hex()),
		zap.String("from", current.Hex()),
		zap.String("to", operator.Hex()),
		zap.Int("pools", len(l.poolIndex[staker])),
	)
	return nil
}

// StakeToPool credits amount shares to the staker and to its delegate, then
// pulls the asset into custody. A failed transfer leaves no trace. Stakers with
// a queued withdrawal cannot add to the position being unbonded.
func (l *DelegationLedger) StakeToPool(ctx context.Context, staker common.Address, id PoolID, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return l.reject("stake", ErrNonPositiveAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[staker]; ok {
		return l.reject("stake", ErrWithdrawalPending)
	}

	pool, ok := l.pools.Pool(id)
	if !ok {
		return l.reject("stake", fmt.Errorf("pool %s: %w", id.Hex(), ErrPoolNotFound))
	}

	key := positionKey{staker, id}
	current := l.stakerShares[key]
	newShares, overflow := addAmount(current, *amount)
	if overflow {
		return l.reject("stake", ErrAmountOverflow)
	}
	newTotal, overflow := addAmount(l.totalShares[id], *amount)
	if overflow {
		return l.reject("stake", ErrAmountOverflow)
	}

	var undo undoLog
	if current.IsZero() {
		l.appendIndex(&undo, staker, id)
	}
	setEntry(&undo, l.stakerShares, key, newShares, false)
	l.creditOperator(&undo, l.delegation[staker], id, *amount)
	setEntry(&undo, l.totalShares, id, newTotal, false)

	if err := pool.creditDeposit(ctx, l, staker, amount); err != nil {
		undo.rollback()
		return l.reject("stake", err)
	}

	stakeCount.Inc()
	l.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventStaked,
		Timestamp: l.opts.clock().Unix(),
		Staker:    staker.Hex(),
		Operator:  l.delegateHex(staker),
		Pool:      id.Hex(),
		Amount:    FormatAmount(amount),
	})
	l.opts.logger.Debug("staked", zap.String("staker", staker.Hex()), zap.String("pool", id.Hex()), zap.String("amount", FormatAmount(amount)))
	return nil
}

// WithdrawFromPool closes the staker's whole position in a pool. Delegated
// accounting is always revoked; the asset is paid only if the delegate is not
// slashed, otherwise the shares are forfeited without error. A queued
// withdrawal must run its unbonding period through CompleteWithdrawal.
func (l *DelegationLedger) WithdrawFromPool(ctx context.Context, staker common.Address, id PoolID) (Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[staker]; ok {
		return Payout{}, l.reject("withdraw", ErrWithdrawalPending)
	}

	pool, ok := l.pools.Pool(id)
	if !ok {
		return Payout{}, l.reject("withdraw", fmt.Errorf("pool %s: %w", id.Hex(), ErrPoolNotFound))
	}
	shares := l.stakerShares[positionKey{staker, id}]
	if shares.IsZero() {
		return Payout{}, l.reject("withdraw", ErrNoPosition)
	}

	operator := l.delegation[staker]
	forfeit := l.slashing.IsSlashed(operator)

	var undo undoLog
	l.closePosition(&undo, staker, operator, id, shares, forfeit)
	l.removeIndex(&undo, staker, id)

	payout := Payout{Pool: id, Shares: shares.Clone(), Paid: new(uint256.Int), Forfeited: forfeit}
	if !forfeit {
		if err := pool.debitWithdrawal(ctx, l, staker, &shares); err != nil {
			undo.rollback()
			return Payout{}, l.reject("withdraw", err)
		}
		payout.Paid = shares.Clone()
	}

	l.notePayout(staker, operator, payout)
	l.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventWithdrawn,
		Timestamp: l.opts.clock().Unix(),
		Staker:    staker.Hex(),
		Operator:  l.delegateHex(staker),
		Pool:      id.Hex(),
		Amount:    FormatAmount(&shares),
		Forfeited: forfeit,
	})
	return payout, nil
}

func (l *DelegationLedger) notePayout(staker, operator common.Address, payout Payout) {
	withdrawCount.Inc()
	if payout.Forfeited {
		forfeitCount.Inc()
		l.opts.logger.Warn("withdrawal forfeited",
			zap.String("staker", staker.Hex()),
			zap.String("operator", operator.Hex()),
			zap.String("pool", payout.Pool.Hex()),
			zap.String("shares", FormatAmount(payout.Shares)),
		)
		return
	}
	l.opts.logger.Debug("withdrawn",
		zap.String("staker", staker.Hex()),
		zap.String("pool", payout.Pool.Hex()),
		zap.String("amount", FormatAmount(payout.Paid)),
	)
}

// closePosition zeroes a staker position and revokes the delegate's share of it.
func (l *DelegationLedger) closePosition(undo *undoLog, staker, operator common.Address, id PoolID, shares uint256.Int, forfeit bool) {
	setEntry(undo, l.stakerShares, positionKey{staker, id}, uint256.Int{}, true)
	l.debitOperator(undo, operator, id, shares)
	setEntry(undo, l.totalShares, id, subAmount(l.totalShares[id], shares, "pool total shares"), false)
	if forfeit {
		total, overflow := addAmount(l.forfeited[id], shares)
		if overflow {
			violate("forfeited total overflow for pool %s", id.Hex())
		}
		setEntry(undo, l.forfeited, id, total, false)
	}
}

func (l *DelegationLedger) moveOperatorShares(undo *undoLog, from, to common.Address, id PoolID, shares uint256.Int) {
	if shares.IsZero() {
		return
	}
	l.debitOperator(undo, from, id, shares)
	l.creditOperator(undo, to, id, shares)
}

func (l *DelegationLedger) creditOperator(undo *undoLog, operator common.Address, id PoolID, shares uint256.Int) {
	key := positionKey{operator, id}
	total, overflow := addAmount(l.operatorShares[key], shares)
	if overflow {
		violate("operator shares overflow for %s in %s", operator.Hex(), id.Hex())
	}
	setEntry(undo, l.operatorShares, key, total, false)
}

func (l *DelegationLedger) debitOperator(undo *undoLog, operator common.Address, id PoolID, shares uint256.Int) {
	key := positionKey{operator, id}
	left := subAmount(l.operatorShares[key], shares, "operator shares")
	setEntry(undo, l.operatorShares, key, left, left.IsZero())
}

func (l *DelegationLedger) appendIndex(undo *undoLog, staker common.Address, id PoolID) {
	index := l.poolIndex[staker]
	next := make([]PoolID, len(index), len(index)+1)
	copy(next, index)
	setEntry(undo, l.poolIndex, staker, append(next, id), false)
}

// removeIndex swaps the pool with the last entry; index order carries no meaning.
func (l *DelegationLedger) removeIndex(undo *undoLog, staker common.Address, id PoolID) {
	index := l.poolIndex[staker]
	for i, pool := range index {
		if pool != id {
			continue
		}
		next := append([]PoolID(nil), index...)
		next[i] = next[len(next)-1]
		next = next[:len(next)-1]
		setEntry(undo, l.poolIndex, staker, next, len(next) == 0)
		return
	}
	violate("pool %s missing from index of %s", id.Hex(), staker.Hex())
}

// delegateHex is the staker's operator for events; empty while undelegated.
func (l *DelegationLedger) delegateHex(staker common.Address) string {
	if operator, ok := l.delegation[staker]; ok {
		return operator.Hex()
	}
	return ""
}

func (l *DelegationLedger) reject(op string, err error) error {
	rejectedCount.WithLabelValues(ClassOf(err).String()).Inc()
	l.opts.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	return err
}

// Shares returns the staker's share balance in a pool.
func (l *DelegationLedger) Shares(staker common.Address, id PoolID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	shares := l.stakerShares[positionKey{staker, id}]
	return shares.Clone()
}

// OperatorShares returns the shares delegated to operator in a pool.
func (l *DelegationLedger) OperatorShares(operator common.Address, id PoolID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	shares := l.operatorShares[positionKey{operator, id}]
	return shares.Clone()
}

// TotalShares returns the outstanding share supply of a pool.
func (l *DelegationLedger) TotalShares(id PoolID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.totalShares[id]
	return total.Clone()
}

// Forfeited returns the shares closed without payout in a pool; their asset stays in custody.
func (l *DelegationLedger) Forfeited(id PoolID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.forfeited[id]
	return total.Clone()
}

// DelegateOf returns the staker's operator, if any.
func (l *DelegationLedger) DelegateOf(staker common.Address) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	operator, ok := l.delegation[staker]
	return operator, ok
}

// PoolIndex returns the pools where the staker holds a nonzero position.
func (l *DelegationLedger) PoolIndex(staker common.Address) []PoolID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PoolID(nil), l.poolIndex[staker]...)
}

// UnbondingPeriod returns the period applied to delegators of operator.
func (l *DelegationLedger) UnbondingPeriod(operator common.Address) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unbondingPeriod(operator)
}

// ValidatePeriod reports ErrInvalidPeriod for negative or fractional-second periods.
func ValidatePeriod(period time.Duration) error {
	if period < 0 || period%time.Second != 0 {
		return fmt.Errorf("period %s: %w", period, ErrInvalidPeriod)
	}
	return nil
}

func (l *DelegationLedger) unbondingPeriod(operator common.Address) time.Duration {
	if period, ok := l.operators[operator]; ok {
		return period
	}
	return l.cfg.DefaultUnbondingPeriod
}
