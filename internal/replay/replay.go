package replay

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"restakeLedger/internal/asset"
	"restakeLedger/internal/ledger"
	"restakeLedger/internal/model"
)

// Replayer rebuilds ledger state from a journal. Asset movements are not
// repeated; every re-emitted event must equal the journaled one.
type Replayer struct {
	cfg    ledger.Config
	logger *zap.Logger
}

func NewReplayer(cfg ledger.Config, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{cfg: cfg, logger: logger}
}

// Result describes a completed replay.
type Result struct {
	Applied  int
	Skipped  int
	Snapshot model.LedgerSnapshot
}

// Replay applies events on top of base, or an empty ledger when base is nil.
// Events at or below base's sequence are skipped.
func (r *Replayer) Replay(ctx context.Context, base *model.LedgerSnapshot, events []model.LedgerEvent) (Result, error) {
	clock := &pinnedClock{}
	var lastSeq uint64
	if base != nil {
		lastSeq = base.Sequence
	}
	sys := ledger.NewSystem(r.cfg, asset.NopLedger{}, ledger.FlagVerifier{}, ledger.NewRecorder(lastSeq),
		ledger.WithClock(clock.Now),
		ledger.WithLogger(r.logger.Named("ledger")),
	)
	if base != nil {
		if err := sys.Restore(*base); err != nil {
			return Result{}, fmt.Errorf("restore base snapshot: %w", err)
		}
	}

	var result Result
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		if ev.Sequence <= lastSeq {
			result.Skipped++
			continue
		}
		if ev.Sequence != lastSeq+1 {
			return result, fmt.Errorf("sequence gap: %d after %d", ev.Sequence, lastSeq)
		}

		clock.Set(time.Unix(ev.Timestamp, 0).UTC())
		if err := apply(ctx, sys, ev); err != nil {
			return result, fmt.Errorf("replay event %d (%s): %w", ev.Sequence, ev.Kind, err)
		}
		emitted := sys.Recorder.Drain()
		if len(emitted) != 1 || !reflect.DeepEqual(emitted[0], ev) {
			return result, fmt.Errorf("replay event %d (%s): diverged: got %+v", ev.Sequence, ev.Kind, emitted)
		}
		lastSeq = ev.Sequence
		result.Applied++
	}

	if err := sys.CheckInvariants(); err != nil {
		return result, fmt.Errorf("check invariants: %w", err)
	}
	result.Snapshot = sys.Snapshot()
	r.logger.Info("replay complete",
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Uint64("last_sequence", lastSeq),
	)
	return result, nil
}

func apply(ctx context.Context, sys *ledger.System, ev model.LedgerEvent) error {
	switch ev.Kind {
	case model.EventPoolCreated:
		pool, err := parse("pool", ev.Pool)
		if err != nil {
			return err
		}
		_, err = sys.Pools.CreatePool(pool)
		return err
	case model.EventPoolWeightSet:
		pool, err := parse("pool", ev.Pool)
		if err != nil {
			return err
		}
		return sys.Pools.SetPoolWeight(pool, ev.Weight)
	case model.EventOperatorRegistered:
		operator, err := parse("operator", ev.Operator)
		if err != nil {
			return err
		}
		return sys.Ledger.RegisterOperator(operator, time.Duration(ev.UnbondingSecs)*time.Second)
	case model.EventDelegated:
		staker, err := parse("staker", ev.Staker)
		if err != nil {
			return err
		}
		operator, err := parse("operator", ev.Operator)
		if err != nil {
			return err
		}
		return sys.Ledger.DelegateTo(staker, operator)
	case model.EventStaked:
		staker, err := parse("staker", ev.Staker)
		if err != nil {
			return err
		}
		pool, err := parse("pool", ev.Pool)
		if err != nil {
			return err
		}
		amount, err := ledger.ParseAmount(ev.Amount)
		if err != nil {
			return err
		}
		return sys.Ledger.StakeToPool(ctx, staker, pool, amount)
	case model.EventWithdrawn:
		staker, err := parse("staker", ev.Staker)
		if err != nil {
			return err
		}
		pool, err := parse("pool", ev.Pool)
		if err != nil {
			return err
		}
		_, err = sys.Ledger.WithdrawFromPool(ctx, staker, pool)
		return err
	case model.EventWithdrawalQueued:
		staker, err := parse("staker", ev.Staker)
		if err != nil {
			return err
		}
		_, err = sys.Ledger.QueueWithdrawal(staker)
		return err
	case model.EventWithdrawalCompleted:
		staker, err := parse("staker", ev.Staker)
		if err != nil {
			return err
		}
		_, err = sys.Ledger.CompleteWithdrawal(ctx, staker)
		return err
	case model.EventAuthorityEnrolled, model.EventAuthorityExited:
		operator, err := parse("operator", ev.Operator)
		if err != nil {
			return err
		}
		authority, err := parse("authority", ev.Authority)
		if err != nil {
			return err
		}
		if ev.Kind == model.EventAuthorityExited {
			return sys.Slashing.Exit(operator, authority)
		}
		return sys.Slashing.Enroll(operator, authority)
	case model.EventOperatorSlashed:
		operator, err := parse("operator", ev.Operator)
		if err != nil {
			return err
		}
		authority, err := parse("authority", ev.Authority)
		if err != nil {
			return err
		}
		// The journal records slashes whose proof was already verified.
		return sys.Slashing.Slash(ctx, authority, operator, model.SlashProof{Valid: true})
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func parse(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

type pinnedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *pinnedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *pinnedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
