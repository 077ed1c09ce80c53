package ledger

import (
	"errors"
	"fmt"
)

// Class groups rejection errors by who can correct them.
type Class int

const (
	ClassNone Class = iota
	ClassInput
	ClassAuthorization
	ClassPolicy
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassAuthorization:
		return "authorization"
	case ClassPolicy:
		return "policy"
	default:
		return "none"
	}
}

type ledgerError struct {
	class Class
	msg   string
}

func (e *ledgerError) Error() string { return e.msg }

var (
	ErrNonPositiveAmount   = &ledgerError{ClassInput, "amount must be positive"}
	ErrAmountOverflow      = &ledgerError{ClassInput, "amount overflows 256 bits"}
	ErrPoolNotFound        = &ledgerError{ClassInput, "pool not found"}
	ErrNoPosition          = &ledgerError{ClassInput, "no position"}
	ErrAlreadyExists       = &ledgerError{ClassInput, "already exists"}
	ErrAlreadyQueued       = &ledgerError{ClassInput, "withdrawal already queued"}
	ErrNotReady            = &ledgerError{ClassInput, "withdrawal not ready"}
	ErrNoPendingWithdrawal = &ledgerError{ClassInput, "no pending withdrawal"}
	ErrWithdrawalPending   = &ledgerError{ClassInput, "withdrawal pending"}
	ErrZeroAddress         = &ledgerError{ClassInput, "zero address"}
	ErrInvalidProof        = &ledgerError{ClassInput, "invalid slash proof"}
	ErrInvalidPeriod       = &ledgerError{ClassInput, "unbonding period must be whole non-negative seconds"}

	ErrUnauthorized      = &ledgerError{ClassAuthorization, "unauthorized"}
	ErrNotAllowedToSlash = &ledgerError{ClassAuthorization, "not allowed to slash"}

	ErrOperatorSlashed = &ledgerError{ClassPolicy, "operator slashed"}
	ErrStakerSlashed   = &ledgerError{ClassPolicy, "staker slashed"}
)

// ClassOf reports the class of a ledger rejection, or ClassNone for other errors.
func ClassOf(err error) Class {
	var le *ledgerError
	if errors.As(err, &le) {
		return le.class
	}
	return ClassNone
}

// InvariantViolation is the panic value raised when internal accounting would
// become inconsistent. No valid call sequence reaches it.
type InvariantViolation struct {
	Msg string
}

func (v *InvariantViolation) Error() string {
	return "ledger invariant violated: " + v.Msg
}

func violate(format string, args ...interface{}) {
	panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}
