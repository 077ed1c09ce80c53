package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"restakeLedger/internal/ledger"
	"restakeLedger/internal/model"
)

func (r *Runner) apply(ctx context.Context, op Op) error {
	switch op.Op {
	case OpCreatePool:
		caller, pool, err := addresses(op, "caller", "pool")
		if err != nil {
			return err
		}
		_, err = r.gate.CreatePool(caller, pool)
		return err
	case OpSetWeight:
		caller, pool, err := addresses(op, "caller", "pool")
		if err != nil {
			return err
		}
		return r.gate.SetPoolWeight(caller, pool, op.Weight)
	case OpTransferOwnership:
		caller, account, err := addresses(op, "caller", "account")
		if err != nil {
			return err
		}
		return r.gate.TransferOwnership(caller, account)
	case OpMint, OpApprove:
		pool, account, err := addresses(op, "pool", "account")
		if err != nil {
			return err
		}
		amount, err := ledger.ParseAmount(op.Amount)
		if err != nil {
			return err
		}
		if op.Op == OpApprove {
			r.assets.Approve(pool, account, amount)
			return nil
		}
		return r.assets.Mint(pool, account, amount)
	case OpRegisterOperator:
		operator, err := address(op, "operator")
		if err != nil {
			return err
		}
		period, err := time.ParseDuration(op.Unbonding)
		if err != nil {
			return fmt.Errorf("parse unbonding: %w", err)
		}
		return r.sys.Ledger.RegisterOperator(operator, period)
	case OpDelegate:
		staker, operator, err := addresses(op, "staker", "operator")
		if err != nil {
			return err
		}
		return r.sys.Ledger.DelegateTo(staker, operator)
	case OpStake:
		staker, pool, err := addresses(op, "staker", "pool")
		if err != nil {
			return err
		}
		amount, err := ledger.ParseAmount(op.Amount)
		if err != nil {
			return err
		}
		return r.sys.Ledger.StakeToPool(ctx, staker, pool, amount)
	case OpWithdraw:
		staker, pool, err := addresses(op, "staker", "pool")
		if err != nil {
			return err
		}
		payout, err := r.sys.Ledger.WithdrawFromPool(ctx, staker, pool)
		if err != nil {
			return err
		}
		r.notePayouts(staker, payout)
		return nil
	case OpQueueWithdrawal:
		staker, err := address(op, "staker")
		if err != nil {
			return err
		}
		_, err = r.sys.Ledger.QueueWithdrawal(staker)
		return err
	case OpCompleteWithdrawal:
		staker, err := address(op, "staker")
		if err != nil {
			return err
		}
		payouts, err := r.sys.Ledger.CompleteWithdrawal(ctx, staker)
		if err != nil {
			return err
		}
		r.notePayouts(staker, payouts...)
		return nil
	case OpEnroll, OpExit:
		operator, authority, err := addresses(op, "operator", "authority")
		if err != nil {
			return err
		}
		if op.Op == OpExit {
			return r.sys.Slashing.Exit(operator, authority)
		}
		return r.sys.Slashing.Enroll(operator, authority)
	case OpSlash:
		authority, operator, err := addresses(op, "authority", "operator")
		if err != nil {
			return err
		}
		proof := model.SlashProof{}
		if op.Proof != nil {
			proof = *op.Proof
		}
		return r.sys.Slashing.Slash(ctx, authority, operator, proof)
	case OpAdvance:
		if op.Seconds < 0 {
			return fmt.Errorf("advance by negative seconds: %d", op.Seconds)
		}
		r.clock.Advance(time.Duration(op.Seconds) * time.Second)
		return nil
	default:
		return fmt.Errorf("unknown op: %s", op.Op)
	}
}

func (r *Runner) notePayouts(staker common.Address, payouts ...ledger.Payout) {
	for _, payout := range payouts {
		if payout.Forfeited {
			r.forfeits++
			continue
		}
		r.logger.Debug("paid out",
			zap.String("staker", staker.Hex()),
			zap.String("pool", payout.Pool.Hex()),
			zap.String("amount", ledger.FormatAmount(payout.Paid)),
		)
	}
}

func address(op Op, field string) (common.Address, error) {
	var value string
	switch field {
	case "caller":
		value = op.Caller
	case "staker":
		value = op.Staker
	case "operator":
		value = op.Operator
	case "authority":
		value = op.Authority
	case "pool":
		value = op.Pool
	case "account":
		value = op.Account
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid %s address %q", op.Op, field, value)
	}
	return common.HexToAddress(value), nil
}

func addresses(op Op, first, second string) (common.Address, common.Address, error) {
	a, err := address(op, first)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	b, err := address(op, second)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return a, b, nil
}
