package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"restakeLedger/internal/model"
)

var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientAllowance   = errors.New("insufficient allowance")
	ErrInsufficientPoolBalance = errors.New("insufficient pool balance")
)

type holding struct {
	asset   common.Address
	account common.Address
}

type grant struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// MemoryLedger is an in-memory fungible asset ledger. Deposits are pulled from
// stakers into a single custody account under an allowance, ERC20 style.
type MemoryLedger struct {
	mu         sync.Mutex
	custody    common.Address
	balances   map[holding]uint256.Int
	allowances map[grant]uint256.Int
	supply     map[common.Address]uint256.Int
}

func NewMemoryLedger(custody common.Address) *MemoryLedger {
	return &MemoryLedger{
		custody:    custody,
		balances:   make(map[holding]uint256.Int),
		allowances: make(map[grant]uint256.Int),
		supply:     make(map[common.Address]uint256.Int),
	}
}

// Custody returns the account holding pooled assets.
func (m *MemoryLedger) Custody() common.Address {
	return m.custody
}

// Mint credits amount of asset to account. The asset's total supply is capped
// at 256 bits, which bounds every balance.
func (m *MemoryLedger) Mint(asset, account common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	supply := m.supply[asset]
	var nextSupply uint256.Int
	if _, overflow := nextSupply.AddOverflow(&supply, amount); overflow {
		return fmt.Errorf("mint %s: supply overflow", asset.Hex())
	}

	key := holding{asset, account}
	current := m.balances[key]
	m.supply[asset] = nextSupply
	m.balances[key] = *new(uint256.Int).Add(&current, amount)
	return nil
}

// Approve sets the custody allowance owner grants for asset.
func (m *MemoryLedger) Approve(asset, owner common.Address, amount *uint256.Int) {
	m.mu.Lock()
	m.allowances[grant{asset, owner, m.custody}] = *amount
	m.mu.Unlock()
}

func (m *MemoryLedger) BalanceOf(asset, account common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance := m.balances[holding{asset, account}]
	return balance.Clone()
}

func (m *MemoryLedger) Allowance(asset, owner common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	allowance := m.allowances[grant{asset, owner, m.custody}]
	return allowance.Clone()
}

// TransferIn pulls amount from the staker into custody, spending allowance.
func (m *MemoryLedger) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src := holding{asset, from}
	balance := m.balances[src]
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	allowanceKey := grant{asset, from, m.custody}
	allowance := m.allowances[allowanceKey]
	if allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}

	dst := holding{asset, m.custody}
	custody := m.balances[dst]
	var credited uint256.Int
	if _, overflow := credited.AddOverflow(&custody, amount); overflow {
		return fmt.Errorf("custody balance overflow for %s", asset.Hex())
	}

	m.balances[src] = *new(uint256.Int).Sub(&balance, amount)
	m.allowances[allowanceKey] = *new(uint256.Int).Sub(&allowance, amount)
	m.balances[dst] = credited
	return nil
}

// TransferOut pays amount from custody to the recipient.
func (m *MemoryLedger) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return m.TransferOutBatch(ctx, to, []model.AssetTransfer{{Asset: asset, Amount: amount}})
}

// TransferOutBatch pays every leg or none of them.
func (m *MemoryLedger) TransferOutBatch(ctx context.Context, to common.Address, transfers []model.AssetTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	debits := make(map[common.Address]uint256.Int, len(transfers))
	for _, transfer := range transfers {
		sum := debits[transfer.Asset]
		var next uint256.Int
		if _, overflow := next.AddOverflow(&sum, transfer.Amount); overflow {
			return ErrInsufficientPoolBalance
		}
		debits[transfer.Asset] = next
	}
	for asset, amount := range debits {
		custody := m.balances[holding{asset, m.custody}]
		if custody.Lt(&amount) {
			return fmt.Errorf("asset %s: %w", asset.Hex(), ErrInsufficientPoolBalance)
		}
	}

	for _, transfer := range transfers {
		src := holding{transfer.Asset, m.custody}
		dst := holding{transfer.Asset, to}
		custody := m.balances[src]
		recipient := m.balances[dst]
		m.balances[src] = *new(uint256.Int).Sub(&custody, transfer.Amount)
		// Mint caps supply at 256 bits, so a recipient balance cannot overflow.
		m.balances[dst] = *new(uint256.Int).Add(&recipient, transfer.Amount)
	}
	return nil
}
