package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// QueuedSlashPolicy decides how a slash affects an already queued withdrawal.
type QueuedSlashPolicy string

const (
	// ForfeitAtPayout gates payout on the delegate's slashed flag at completion time.
	ForfeitAtPayout QueuedSlashPolicy = "forfeit-at-payout"
	// HonorQueued pays out unless the delegate was slashed at or before queue time.
	HonorQueued QueuedSlashPolicy = "honor-queued"
)

// ParseQueuedSlashPolicy validates a policy name; empty selects ForfeitAtPayout.
func ParseQueuedSlashPolicy(value string) (QueuedSlashPolicy, error) {
	switch QueuedSlashPolicy(value) {
	case "", ForfeitAtPayout:
		return ForfeitAtPayout, nil
	case HonorQueued:
		return HonorQueued, nil
	default:
		return "", fmt.Errorf("unknown queued slash policy: %s", value)
	}
}

// WithdrawalRequest is a pending two-phase withdrawal.
type WithdrawalRequest struct {
	Staker   common.Address
	Operator common.Address
	QueuedAt time.Time
	ReadyAt  time.Time
}

// QueueWithdrawal starts the unbonding period for the staker's whole position.
// The period comes from the staker's current delegate.
func (l *DelegationLedger) QueueWithdrawal(staker common.Address) (WithdrawalRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[staker]; ok {
		return WithdrawalRequest{}, l.reject("queue_withdrawal", ErrAlreadyQueued)
	}
	if len(l.poolIndex[staker]) == 0 {
		return WithdrawalRequest{}, l.reject("queue_withdrawal", ErrNoPosition)
	}

	operator := l.delegation[staker]
	now := l.opts.clock()
	req := WithdrawalRequest{
		Staker:   staker,
		Operator: operator,
		QueuedAt: now,
		ReadyAt:  now.Add(l.unbondingPeriod(operator)),
	}
	l.pending[staker] = req

	l.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventWithdrawalQueued,
		Timestamp: now.Unix(),
		Staker:    staker.Hex(),
		Operator:  l.delegateHex(staker),
		ReadyAt:   req.ReadyAt.Unix(),
	})
	l.opts.logger.Debug("withdrawal queued",
		zap.String("staker", staker.Hex()),
		zap.String("operator", operator.Hex()),
		zap.Time("ready_at", req.ReadyAt),
	)
	return req, nil
}

// CompleteWithdrawal closes every position in the staker's index once the
// request is ready, paying or forfeiting per the queued slash policy.
func (l *DelegationLedger) CompleteWithdrawal(ctx context.Context, staker common.Address) ([]Payout, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.pending[staker]
	if !ok {
		return nil, l.reject("complete_withdrawal", ErrNoPendingWithdrawal)
	}
	now := l.opts.clock()
	if now.Before(req.ReadyAt) {
		return nil, l.reject("complete_withdrawal", fmt.Errorf("ready at %s: %w", req.ReadyAt.UTC().Format(time.RFC3339), ErrNotReady))
	}

	operator := l.delegation[staker]
	forfeit := l.queuedForfeit(operator, req)

	var undo undoLog
	index := l.poolIndex[staker]
	payouts := make([]Payout, 0, len(index))
	transfers := make([]model.AssetTransfer, 0, len(index))
	for _, id := range index {
		shares := l.stakerShares[positionKey{staker, id}]
		l.closePosition(&undo, staker, operator, id, shares, forfeit)
		payout := Payout{Pool: id, Shares: shares.Clone(), Paid: new(uint256.Int), Forfeited: forfeit}
		if !forfeit {
			payout.Paid = shares.Clone()
			transfers = append(transfers, model.AssetTransfer{Asset: id, Amount: shares.Clone()})
		}
		payouts = append(payouts, payout)
	}
	setEntry(&undo, l.poolIndex, staker, []PoolID(nil), true)
	setEntry(&undo, l.pending, staker, WithdrawalRequest{}, true)

	if err := l.pools.payoutBatch(ctx, l, staker, transfers); err != nil {
		undo.rollback()
		return nil, l.reject("complete_withdrawal", err)
	}

	records := make([]model.PayoutRecord, 0, len(payouts))
	for _, payout := range payouts {
		l.notePayout(staker, operator, payout)
		records = append(records, model.PayoutRecord{
			Pool:      payout.Pool.Hex(),
			Shares:    FormatAmount(payout.Shares),
			Forfeited: payout.Forfeited,
		})
	}
	l.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventWithdrawalCompleted,
		Timestamp: now.Unix(),
		Staker:    staker.Hex(),
		Operator:  l.delegateHex(staker),
		Forfeited: forfeit,
		Payouts:   records,
	})
	return payouts, nil
}

func (l *DelegationLedger) queuedForfeit(operator common.Address, req WithdrawalRequest) bool {
	if l.cfg.QueuedSlashPolicy == HonorQueued {
		at, slashed := l.slashing.SlashedAt(operator)
		return slashed && !at.After(req.QueuedAt)
	}
	return l.slashing.IsSlashed(operator)
}

// PendingWithdrawal returns the staker's queued request, if any.
func (l *DelegationLedger) PendingWithdrawal(staker common.Address) (WithdrawalRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.pending[staker]
	return req, ok
}
