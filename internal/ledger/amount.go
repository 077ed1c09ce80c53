package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ParseAmount parses a base-10 amount that must fit in 256 bits.
func ParseAmount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	amount, overflow := uint256.FromBig(parsed)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return amount, nil
}

// FormatAmount renders an amount as a base-10 string.
func FormatAmount(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.ToBig().String()
}

func addAmount(a, b uint256.Int) (uint256.Int, bool) {
	var z uint256.Int
	_, overflow := z.AddOverflow(&a, &b)
	return z, overflow
}

// subAmount panics on underflow: callers only subtract amounts the ledger itself credited.
func subAmount(a, b uint256.Int, what string) uint256.Int {
	var z uint256.Int
	if _, underflow := z.SubOverflow(&a, &b); underflow {
		violate("%s underflow: %s - %s", what, a.ToBig(), b.ToBig())
	}
	return z
}
