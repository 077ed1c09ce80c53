package runner

import (
	"errors"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/ledger"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ledger.ErrNonPositiveAmount, "non_positive_amount"},
	{ledger.ErrAmountOverflow, "amount_overflow"},
	{ledger.ErrPoolNotFound, "pool_not_found"},
	{ledger.ErrNoPosition, "no_position"},
	{ledger.ErrAlreadyExists, "already_exists"},
	{ledger.ErrAlreadyQueued, "already_queued"},
	{ledger.ErrNotReady, "not_ready"},
	{ledger.ErrNoPendingWithdrawal, "no_pending_withdrawal"},
	{ledger.ErrWithdrawalPending, "withdrawal_pending"},
	{ledger.ErrZeroAddress, "zero_address"},
	{ledger.ErrInvalidProof, "invalid_proof"},
	{ledger.ErrInvalidPeriod, "invalid_period"},
	{ledger.ErrUnauthorized, "unauthorized"},
	{ledger.ErrNotAllowedToSlash, "not_allowed_to_slash"},
	{ledger.ErrOperatorSlashed, "operator_slashed"},
	{ledger.ErrStakerSlashed, "staker_slashed"},
	{asset.ErrInsufficientBalance, "insufficient_balance"},
	{asset.ErrInsufficientAllowance, "insufficient_allowance"},
	{asset.ErrInsufficientPoolBalance, "insufficient_pool_balance"},
}

// ErrorCode maps an operation outcome to the code used by Op.Expect.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "error"
}
