package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"restakeLedger/internal/model"
)

// System wires the three components in dependency order: pools and slashing
// first, then the delegation ledger, which binds itself to the pool registry.
type System struct {
	Pools    *PoolRegistry
	Slashing *SlashingRegistry
	Ledger   *DelegationLedger
	Recorder *Recorder
}

// NewSystem builds a System whose components share one recorder, clock and logger.
func NewSystem(cfg Config, assets AssetLedger, verifier ProofVerifier, recorder *Recorder, opts ...Option) *System {
	if recorder != nil {
		opts = append(opts, WithRecorder(recorder))
	}
	pools := NewPoolRegistry(assets, opts...)
	slashing := NewSlashingRegistry(verifier, opts...)
	return &System{
		Pools:    pools,
		Slashing: slashing,
		Ledger:   NewDelegationLedger(cfg, pools, slashing, opts...),
		Recorder: recorder,
	}
}

// lockAll takes every component lock in the fixed ledger → pools → slashing order.
func (s *System) lockAll() func() {
	s.Ledger.mu.Lock()
	s.Pools.mu.Lock()
	s.Slashing.mu.Lock()
	return func() {
		s.Slashing.mu.Unlock()
		s.Pools.mu.Unlock()
		s.Ledger.mu.Unlock()
	}
}

// Snapshot captures a consistent copy of all state.
func (s *System) Snapshot() model.LedgerSnapshot {
	unlock := s.lockAll()
	defer unlock()

	l := s.Ledger
	snap := model.LedgerSnapshot{
		Sequence:    s.Recorder.Sequence(),
		TakenAt:     l.opts.clock().Unix(),
		TotalWeight: s.Pools.totalWeight,
	}

	for _, id := range s.Pools.order {
		total := l.totalShares[id]
		forfeited := l.forfeited[id]
		snap.Pools = append(snap.Pools, model.PoolRecord{
			Asset:       id.Hex(),
			Weight:      s.Pools.pools[id].weight,
			TotalShares: FormatAmount(&total),
			Forfeited:   FormatAmount(&forfeited),
		})
	}

	stakers := make(map[common.Address]struct{})
	for staker := range l.delegation {
		stakers[staker] = struct{}{}
	}
	for staker := range l.poolIndex {
		stakers[staker] = struct{}{}
	}
	for staker := range l.pending {
		stakers[staker] = struct{}{}
	}
	for _, staker := range sortedAddresses(stakers) {
		record := model.StakerRecord{Staker: staker.Hex()}
		if operator, ok := l.delegation[staker]; ok {
			record.Delegate = operator.Hex()
		}
		for _, id := range l.poolIndex[staker] {
			shares := l.stakerShares[positionKey{staker, id}]
			record.Positions = append(record.Positions, model.Position{Pool: id.Hex(), Shares: FormatAmount(&shares)})
		}
		if req, ok := l.pending[staker]; ok {
			record.Pending = &model.WithdrawalRequest{
				Operator: req.Operator.Hex(),
				QueuedAt: req.QueuedAt.Unix(),
				ReadyAt:  req.ReadyAt.Unix(),
			}
		}
		snap.Stakers = append(snap.Stakers, record)
	}

	operators := make(map[common.Address]struct{})
	for operator := range l.operators {
		operators[operator] = struct{}{}
	}
	for key := range l.operatorShares {
		operators[key.holder] = struct{}{}
	}
	for operator := range s.Slashing.slashedAt {
		operators[operator] = struct{}{}
	}
	for operator := range s.Slashing.authorities {
		operators[operator] = struct{}{}
	}
	for _, operator := range sortedAddresses(operators) {
		period, registered := l.operators[operator]
		record := model.OperatorRecord{
			Operator:      operator.Hex(),
			Registered:    registered,
			UnbondingSecs: int64(period / time.Second),
		}
		if at, ok := s.Slashing.slashedAt[operator]; ok {
			record.Slashed = true
			record.SlashedAt = at.Unix()
		}
		for _, authority := range s.Slashing.authorities[operator] {
			record.Authorities = append(record.Authorities, authority.Hex())
		}
		for _, id := range s.Pools.order {
			shares, ok := l.operatorShares[positionKey{operator, id}]
			if !ok {
				continue
			}
			record.Positions = append(record.Positions, model.Position{Pool: id.Hex(), Shares: FormatAmount(&shares)})
		}
		snap.Operators = append(snap.Operators, record)
	}

	return snap
}

// Restore loads snap into a freshly constructed System. It bypasses asset
// transfers and event recording, and checks invariants before returning.
func (s *System) Restore(snap model.LedgerSnapshot) error {
	if err := s.restore(snap); err != nil {
		return err
	}
	return s.CheckInvariants()
}

func (s *System) restore(snap model.LedgerSnapshot) error {
	unlock := s.lockAll()
	defer unlock()

	l := s.Ledger
	if len(s.Pools.order) > 0 || len(l.delegation) > 0 || len(l.poolIndex) > 0 {
		return fmt.Errorf("restore into non-empty ledger")
	}

	for _, rec := range snap.Pools {
		id, err := parseAddress("pool", rec.Asset)
		if err != nil {
			return err
		}
		s.Pools.pools[id] = &Pool{asset: id, weight: rec.Weight, registry: s.Pools}
		s.Pools.order = append(s.Pools.order, id)
		s.Pools.totalWeight += rec.Weight
		if err := restoreAmount(l.totalShares, id, rec.TotalShares); err != nil {
			return err
		}
		if err := restoreAmount(l.forfeited, id, rec.Forfeited); err != nil {
			return err
		}
	}
	poolCount.Set(float64(len(s.Pools.order)))
	if s.Recorder != nil {
		s.Recorder.mu.Lock()
		if s.Recorder.seq < snap.Sequence {
			s.Recorder.seq = snap.Sequence
		}
		s.Recorder.mu.Unlock()
	}
	if s.Pools.totalWeight != snap.TotalWeight {
		return fmt.Errorf("total weight %d does not match pools %d", snap.TotalWeight, s.Pools.totalWeight)
	}

	for _, rec := range snap.Stakers {
		staker, err := parseAddress("staker", rec.Staker)
		if err != nil {
			return err
		}
		if rec.Delegate != "" {
			operator, err := parseAddress("delegate", rec.Delegate)
			if err != nil {
				return err
			}
			l.delegation[staker] = operator
		}
		for _, pos := range rec.Positions {
			id, err := parseAddress("pool", pos.Pool)
			if err != nil {
				return err
			}
			if err := restoreAmount(l.stakerShares, positionKey{staker, id}, pos.Shares); err != nil {
				return err
			}
			l.poolIndex[staker] = append(l.poolIndex[staker], id)
		}
		if rec.Pending != nil {
			operator, err := parseAddress("pending operator", rec.Pending.Operator)
			if err != nil {
				return err
			}
			l.pending[staker] = WithdrawalRequest{
				Staker:   staker,
				Operator: operator,
				QueuedAt: time.Unix(rec.Pending.QueuedAt, 0).UTC(),
				ReadyAt:  time.Unix(rec.Pending.ReadyAt, 0).UTC(),
			}
		}
	}

	for _, rec := range snap.Operators {
		operator, err := parseAddress("operator", rec.Operator)
		if err != nil {
			return err
		}
		if rec.Registered {
			l.operators[operator] = time.Duration(rec.UnbondingSecs) * time.Second
		}
		if rec.Slashed {
			s.Slashing.slashedAt[operator] = time.Unix(rec.SlashedAt, 0).UTC()
		}
		for _, value := range rec.Authorities {
			authority, err := parseAddress("authority", value)
			if err != nil {
				return err
			}
			s.Slashing.authorities[operator] = append(s.Slashing.authorities[operator], authority)
		}
		for _, pos := range rec.Positions {
			id, err := parseAddress("pool", pos.Pool)
			if err != nil {
				return err
			}
			if err := restoreAmount(l.operatorShares, positionKey{operator, id}, pos.Shares); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckInvariants verifies the cross-ledger accounting rules: per pool, staker
// shares, operator shares and the recorded total agree; the pool index lists
// exactly the nonzero positions; each operator entry is backed by delegators.
func (s *System) CheckInvariants() error {
	l := s.Ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	stakerSums := make(map[PoolID]uint256.Int)
	for key, shares := range l.stakerShares {
		if shares.IsZero() {
			return fmt.Errorf("zero staker entry %s/%s", key.holder.Hex(), key.pool.Hex())
		}
		if _, ok := s.Pools.Pool(key.pool); !ok {
			return fmt.Errorf("staker %s holds shares in unknown pool %s", key.holder.Hex(), key.pool.Hex())
		}
		if !containsPool(l.poolIndex[key.holder], key.pool) {
			return fmt.Errorf("pool %s missing from index of %s", key.pool.Hex(), key.holder.Hex())
		}
		sum, overflow := addAmount(stakerSums[key.pool], shares)
		if overflow {
			return fmt.Errorf("staker shares overflow in %s", key.pool.Hex())
		}
		stakerSums[key.pool] = sum

		backing := positionKey{l.delegation[key.holder], key.pool}
		if _, ok := l.operatorShares[backing]; !ok {
			return fmt.Errorf("staker %s position in %s has no operator entry", key.holder.Hex(), key.pool.Hex())
		}
	}
	for staker, index := range l.poolIndex {
		seen := make(map[PoolID]struct{}, len(index))
		for _, id := range index {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("duplicate pool %s in index of %s", id.Hex(), staker.Hex())
			}
			seen[id] = struct{}{}
			if _, ok := l.stakerShares[positionKey{staker, id}]; !ok {
				return fmt.Errorf("index of %s lists empty pool %s", staker.Hex(), id.Hex())
			}
		}
	}

	operatorSums := make(map[PoolID]uint256.Int)
	for key, shares := range l.operatorShares {
		if shares.IsZero() {
			return fmt.Errorf("zero operator entry %s/%s", key.holder.Hex(), key.pool.Hex())
		}
		sum, overflow := addAmount(operatorSums[key.pool], shares)
		if overflow {
			return fmt.Errorf("operator shares overflow in %s", key.pool.Hex())
		}
		operatorSums[key.pool] = sum
	}

	for _, id := range s.Pools.Pools() {
		stakerSum := stakerSums[id]
		operatorSum := operatorSums[id]
		total := l.totalShares[id]
		if !stakerSum.Eq(&operatorSum) {
			return fmt.Errorf("pool %s: staker shares %s != operator shares %s", id.Hex(), stakerSum.ToBig(), operatorSum.ToBig())
		}
		if !stakerSum.Eq(&total) {
			return fmt.Errorf("pool %s: staker shares %s != total %s", id.Hex(), stakerSum.ToBig(), total.ToBig())
		}
	}
	for id := range operatorSums {
		if _, ok := s.Pools.Pool(id); !ok {
			return fmt.Errorf("operator shares in unknown pool %s", id.Hex())
		}
	}
	return nil
}

func containsPool(index []PoolID, id PoolID) bool {
	for _, pool := range index {
		if pool == id {
			return true
		}
	}
	return false
}

func sortedAddresses(set map[common.Address]struct{}) []common.Address {
	out := make([]common.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", field, value)
	}
	return common.HexToAddress(value), nil
}

func restoreAmount[K comparable](m map[K]uint256.Int, key K, value string) error {
	amount, err := ParseAmount(value)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	m[key] = *amount
	return nil
}
