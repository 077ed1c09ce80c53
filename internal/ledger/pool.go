package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// PoolID identifies a pool by the address of the asset it custodies.
type PoolID = common.Address

// AssetLedger moves the real fungible asset. Each call either fully succeeds or
// has no effect.
type AssetLedger interface {
	TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error
	TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
}

// BatchAssetLedger is implemented by collaborators that can pay several assets
// to one recipient atomically.
type BatchAssetLedger interface {
	AssetLedger
	TransferOutBatch(ctx context.Context, to common.Address, transfers []model.AssetTransfer) error
}

// Pool is the custody unit for one asset. It keeps no share state.
type Pool struct {
	asset    common.Address
	weight   uint64
	registry *PoolRegistry
}

// Asset returns the custodied asset.
func (p *Pool) Asset() common.Address {
	return p.asset
}

// Weight returns the admin-assigned weight.
func (p *Pool) Weight() uint64 {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	return p.weight
}

func (p *Pool) creditDeposit(ctx context.Context, owner *DelegationLedger, staker common.Address, amount *uint256.Int) error {
	if err := p.registry.authorize(owner); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrNonPositiveAmount
	}
	if err := p.registry.assets.TransferIn(ctx, p.asset, staker, amount); err != nil {
		return fmt.Errorf("transfer in %s: %w", p.asset.Hex(), err)
	}
	return nil
}

func (p *Pool) debitWithdrawal(ctx context.Context, owner *DelegationLedger, staker common.Address, amount *uint256.Int) error {
	if err := p.registry.authorize(owner); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrNonPositiveAmount
	}
	if err := p.registry.assets.TransferOut(ctx, p.asset, staker, amount); err != nil {
		return fmt.Errorf("transfer out %s: %w", p.asset.Hex(), err)
	}
	return nil
}

// PoolRegistry maps assets to pools. Pools are never removed.
type PoolRegistry struct {
	mu          sync.RWMutex
	assets      AssetLedger
	owner       *DelegationLedger
	pools       map[PoolID]*Pool
	order       []PoolID
	totalWeight uint64
	opts        options
}

func NewPoolRegistry(assets AssetLedger, opts ...Option) *PoolRegistry {
	return &PoolRegistry{
		assets: assets,
		pools:  make(map[PoolID]*Pool),
		opts:   buildOptions(opts),
	}
}

// bind hands the credit/debit capability to its single owning ledger.
func (r *PoolRegistry) bind(owner *DelegationLedger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner != nil {
		panic("ledger: pool registry already bound to a delegation ledger")
	}
	r.owner = owner
}

func (r *PoolRegistry) authorize(caller *DelegationLedger) error {
	r.mu.RLock()
	owner := r.owner
	r.mu.RUnlock()
	if owner == nil || caller != owner {
		return ErrUnauthorized
	}
	return nil
}

// CreatePool registers a pool for asset.
func (r *PoolRegistry) CreatePool(asset common.Address) (PoolID, error) {
	if asset == (common.Address{}) {
		return PoolID{}, ErrZeroAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[asset]; ok {
		return PoolID{}, fmt.Errorf("pool %s: %w", asset.Hex(), ErrAlreadyExists)
	}
	r.pools[asset] = &Pool{asset: asset, registry: r}
	r.order = append(r.order, asset)
	poolCount.Set(float64(len(r.order)))

	r.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventPoolCreated,
		Timestamp: r.opts.clock().Unix(),
		Pool:      asset.Hex(),
	})
	r.opts.logger.Info("pool created", zap.String("pool", asset.Hex()))
	return asset, nil
}

// SetPoolWeight reweights a pool, keeping the running total in step.
func (r *PoolRegistry) SetPoolWeight(id PoolID, weight uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[id]
	if !ok {
		return fmt.Errorf("pool %s: %w", id.Hex(), ErrPoolNotFound)
	}
	rest := r.totalWeight - pool.weight
	if weight > math.MaxUint64-rest {
		return ErrAmountOverflow
	}
	pool.weight = weight
	r.totalWeight = rest + weight

	r.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventPoolWeightSet,
		Timestamp: r.opts.clock().Unix(),
		Pool:      id.Hex(),
		Weight:    weight,
	})
	r.opts.logger.Info("pool weight set", zap.String("pool", id.Hex()), zap.Uint64("weight", weight), zap.Uint64("total_weight", r.totalWeight))
	return nil
}

// Pool returns the pool registered for id.
func (r *PoolRegistry) Pool(id PoolID) (*Pool, bool) {
	r.mu.RLock()
	pool, ok := r.pools[id]
	r.mu.RUnlock()
	return pool, ok
}

// Pools returns pool ids in creation order.
func (r *PoolRegistry) Pools() []PoolID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PoolID(nil), r.order...)
}

func (r *PoolRegistry) Weight(id PoolID) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[id]
	if !ok {
		return 0, fmt.Errorf("pool %s: %w", id.Hex(), ErrPoolNotFound)
	}
	return pool.weight, nil
}

// TotalWeight returns the sum of all pool weights.
func (r *PoolRegistry) TotalWeight() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalWeight
}

func (r *PoolRegistry) payoutBatch(ctx context.Context, owner *DelegationLedger, staker common.Address, transfers []model.AssetTransfer) error {
	if err := r.authorize(owner); err != nil {
		return err
	}
	if len(transfers) == 0 {
		return nil
	}
	if batcher, ok := r.assets.(BatchAssetLedger); ok {
		if err := batcher.TransferOutBatch(ctx, staker, transfers); err != nil {
			return fmt.Errorf("transfer out batch: %w", err)
		}
		return nil
	}
	// Single-asset collaborators are atomic per call; a multi-leg payout without
	// batch support is only atomic when it has one leg.
	for _, transfer := range transfers {
		pool, ok := r.Pool(transfer.Asset)
		if !ok {
			violate("payout for unregistered pool %s", transfer.Asset.Hex())
		}
		if err := pool.debitWithdrawal(ctx, owner, staker, transfer.Amount); err != nil {
			return err
		}
	}
	return nil
}
