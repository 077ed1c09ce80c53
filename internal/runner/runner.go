package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"restakeLedger/internal/admin"
	"restakeLedger/internal/asset"
	"restakeLedger/internal/ledger"
	"restakeLedger/internal/model"
	"restakeLedger/internal/storage"
)

// StateName keys the runner's progress marker in the event store.
const StateName = "simulate"

// RunConfig holds runtime settings for a script run.
type RunConfig struct {
	Ledger    ledger.Config
	StartTime time.Time
	Owner     common.Address
	BatchSize int
	FailFast  bool
}

// EventStore mirrors the journal and final snapshot into a database.
// *postgres.Store implements it.
type EventStore interface {
	InsertEvents(ctx context.Context, events []model.LedgerEvent) error
	UpsertSnapshot(ctx context.Context, snap model.LedgerSnapshot) error
	SaveState(ctx context.Context, name string, seq uint64) error
}

// Summary reports the outcome of a run.
type Summary struct {
	Ops          int
	Applied      int
	Rejected     int
	Mismatched   int
	Forfeits     int
	LastSequence uint64
	Snapshot     model.LedgerSnapshot
}

// Runner applies script operations to a ledger and journals the resulting events.
type Runner struct {
	cfg       RunConfig
	sys       *ledger.System
	assets    *asset.MemoryLedger
	gate      *admin.Gate
	clock     *scriptClock
	sink      storage.EventSink
	store     EventStore
	snapshots storage.SnapshotStore
	logger    *zap.Logger
	forfeits  int
}

// NewRunner builds a Runner with a fresh ledger over assets. store and
// snapshots are optional.
func NewRunner(cfg RunConfig, assets *asset.MemoryLedger, verifier ledger.ProofVerifier, sink storage.EventSink, store EventStore, snapshots storage.SnapshotStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now().UTC().Truncate(time.Second)
	}
	clock := &scriptClock{now: cfg.StartTime}
	sys := ledger.NewSystem(cfg.Ledger, assets, verifier, ledger.NewRecorder(0),
		ledger.WithClock(clock.Now),
		ledger.WithLogger(logger.Named("ledger")),
	)
	return &Runner{
		cfg:       cfg,
		sys:       sys,
		assets:    assets,
		gate:      admin.NewGate(cfg.Owner, sys.Pools, logger.Named("admin")),
		clock:     clock,
		sink:      sink,
		store:     store,
		snapshots: snapshots,
		logger:    logger,
	}
}

// System exposes the ledger the runner drives.
func (r *Runner) System() *ledger.System {
	return r.sys
}

// Run applies ops in order. Rejected ops are logged and skipped unless
// FailFast is set; an op whose outcome differs from its Expect code always
// counts as a mismatch.
func (r *Runner) Run(ctx context.Context, ops []Op) (Summary, error) {
	if r.sink == nil {
		return Summary{}, fmt.Errorf("event sink is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return Summary{}, fmt.Errorf("batch size must be greater than zero")
	}

	summary := Summary{Ops: len(ops)}
	for i, op := range ops {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		err := r.apply(ctx, op)
		code := ErrorCode(err)
		if err == nil {
			summary.Applied++
		} else {
			summary.Rejected++
			r.logger.Warn("operation rejected",
				zap.Int("index", i),
				zap.String("op", op.Op),
				zap.String("code", code),
				zap.String("class", ledger.ClassOf(err).String()),
				zap.Error(err),
			)
		}

		mismatch := op.Expect != "" && op.Expect != code
		if mismatch {
			summary.Mismatched++
			r.logger.Error("unexpected outcome", zap.Int("index", i), zap.String("op", op.Op), zap.String("expect", op.Expect), zap.String("got", code))
		}
		if r.cfg.FailFast && (mismatch || (err != nil && op.Expect == "")) {
			if flushErr := r.flush(ctx); flushErr != nil {
				return summary, flushErr
			}
			return summary, fmt.Errorf("op %d (%s): got %s: %w", i, op.Op, code, errOrMismatch(err))
		}

		if r.sys.Recorder.Pending() >= r.cfg.BatchSize {
			if err := r.flush(ctx); err != nil {
				return summary, err
			}
		}
	}

	if err := r.flush(ctx); err != nil {
		return summary, err
	}
	if err := r.sys.CheckInvariants(); err != nil {
		return summary, fmt.Errorf("check invariants: %w", err)
	}

	snap := r.sys.Snapshot()
	if r.snapshots != nil {
		if err := r.snapshots.Save(ctx, snap); err != nil {
			return summary, err
		}
	}
	if r.store != nil {
		if err := r.store.UpsertSnapshot(ctx, snap); err != nil {
			return summary, fmt.Errorf("store snapshot: %w", err)
		}
	}

	summary.Forfeits = r.forfeits
	summary.LastSequence = snap.Sequence
	summary.Snapshot = snap
	r.logger.Info("run complete",
		zap.Int("ops", summary.Ops),
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("mismatched", summary.Mismatched),
		zap.Uint64("last_sequence", summary.LastSequence),
	)
	return summary, nil
}

func errOrMismatch(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("unexpected success")
}

func (r *Runner) flush(ctx context.Context) error {
	events := r.sys.Recorder.Drain()
	if len(events) == 0 {
		return nil
	}
	if err := r.sink.PutEventBatch(events); err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	last := events[len(events)-1].Sequence
	if r.store != nil {
		if err := r.store.InsertEvents(ctx, events); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
		if err := r.store.SaveState(ctx, StateName, last); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	r.logger.Info("batch complete", zap.Int("events", len(events)), zap.Uint64("last_sequence", last))
	return nil
}

type scriptClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *scriptClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *scriptClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
