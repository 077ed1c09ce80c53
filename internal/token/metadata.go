package token

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// Caller performs read-only contract calls. *chain.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// MetaCache keeps metadata for pool assets across audits.
type MetaCache struct {
	mu    sync.RWMutex
	metas map[common.Address]model.TokenMeta
}

func NewMetaCache() *MetaCache {
	return &MetaCache{metas: make(map[common.Address]model.TokenMeta)}
}

// Lookup returns cached metadata for asset, fetching it on a miss. Failed
// fetches are not cached.
func (c *MetaCache) Lookup(ctx context.Context, caller Caller, asset common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	c.mu.RLock()
	meta, ok := c.metas[asset]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := FetchTokenMeta(ctx, caller, asset, logger)
	if err != nil {
		return meta, err
	}
	c.mu.Lock()
	c.metas[asset] = meta
	c.mu.Unlock()
	return meta, nil
}

// FetchTokenMeta reads decimals, symbol and name. Only decimals is required;
// symbol and name fall back to bytes32 and are left empty when neither form answers.
func FetchTokenMeta(ctx context.Context, caller Caller, asset common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: asset.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return meta, err
	}
	out, err := call(ctx, caller, asset, parsed, nil, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := out.(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unexpected type %T", out)
	}
	meta.Decimals = decimals

	meta.Symbol = textField(ctx, caller, asset, "symbol", logger)
	meta.Name = textField(ctx, caller, asset, "name", logger)
	return meta, nil
}

// BalanceOf returns account's balance of asset at block, or at the latest block if block is nil.
func BalanceOf(ctx context.Context, caller Caller, asset, account common.Address, block *big.Int) (*uint256.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	out, err := call(ctx, caller, asset, parsed, block, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	raw, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected type %T", out)
	}
	balance, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("balanceOf: value overflows 256 bits")
	}
	return balance, nil
}

func textField(ctx context.Context, caller Caller, asset common.Address, method string, logger *zap.Logger) string {
	parsed, err := ERC20ABI()
	if err == nil {
		out, callErr := call(ctx, caller, asset, parsed, nil, method)
		if text, ok := out.(string); callErr == nil && ok {
			return text
		}
		err = callErr
	}

	legacy, legacyErr := erc20Bytes32ABI()
	if legacyErr == nil {
		out, callErr := call(ctx, caller, asset, legacy, nil, method)
		if raw, ok := out.([32]byte); callErr == nil && ok {
			return string(bytes.TrimRight(raw[:], "\x00"))
		}
	}

	logger.Debug("token text field unavailable", zap.String("token", asset.Hex()), zap.String("method", method), zap.Error(err))
	return ""
}

// call packs method, runs it against asset and returns the first output.
func call(ctx context.Context, caller Caller, asset common.Address, parsed abi.ABI, block *big.Int, method string, args ...interface{}) (interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &asset, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values[0], nil
}
