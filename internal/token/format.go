package token

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatAmount renders a raw token amount in whole units, e.g. 1500000 with 6
// decimals as "1.5".
func FormatAmount(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
