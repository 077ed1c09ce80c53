package admin

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"restakeLedger/internal/ledger"
)

// Gate restricts pool administration to a single owner.
type Gate struct {
	mu     sync.RWMutex
	owner  common.Address
	pools  *ledger.PoolRegistry
	logger *zap.Logger
}

func NewGate(owner common.Address, pools *ledger.PoolRegistry, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{owner: owner, pools: pools, logger: logger}
}

// Owner returns the current owner.
func (g *Gate) Owner() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

func (g *Gate) CreatePool(caller, asset common.Address) (ledger.PoolID, error) {
	if err := g.check(caller, "create_pool"); err != nil {
		return ledger.PoolID{}, err
	}
	return g.pools.CreatePool(asset)
}

func (g *Gate) SetPoolWeight(caller common.Address, pool ledger.PoolID, weight uint64) error {
	if err := g.check(caller, "set_weight"); err != nil {
		return err
	}
	return g.pools.SetPoolWeight(pool, weight)
}

// TransferOwnership hands the gate to newOwner.
func (g *Gate) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if caller != g.owner {
		return ledger.ErrUnauthorized
	}
	g.logger.Info("ownership transferred", zap.String("from", g.owner.Hex()), zap.String("to", newOwner.Hex()))
	g.owner = newOwner
	return nil
}

func (g *Gate) check(caller common.Address, op string) error {
	g.mu.RLock()
	owner := g.owner
	g.mu.RUnlock()
	if caller != owner {
		g.logger.Debug("admin call rejected", zap.String("op", op), zap.String("caller", caller.Hex()))
		return ledger.ErrUnauthorized
	}
	return nil
}
