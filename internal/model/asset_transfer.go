package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetTransfer is one leg of a batched payout.
type AssetTransfer struct {
	Asset  common.Address
	Amount *uint256.Int
}
