package ledger

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// Clock returns the current time for unbonding and slash bookkeeping.
type Clock func() time.Time

type options struct {
	logger   *zap.Logger
	clock    Clock
	recorder *Recorder
}

// Option configures a ledger component.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRecorder journals every successful mutation into recorder.
func WithRecorder(recorder *Recorder) Option {
	return func(o *options) { o.recorder = recorder }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// Recorder buffers ledger events and assigns them monotonic sequence numbers.
type Recorder struct {
	mu     sync.Mutex
	seq    uint64
	events []model.LedgerEvent
}

// NewRecorder starts numbering after lastSequence.
func NewRecorder(lastSequence uint64) *Recorder {
	return &Recorder{seq: lastSequence}
}

func (r *Recorder) record(event model.LedgerEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.seq++
	event.Sequence = r.seq
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Drain returns buffered events and clears the buffer.
func (r *Recorder) Drain() []model.LedgerEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	events := r.events
	r.events = nil
	r.mu.Unlock()
	return events
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Sequence returns the last assigned sequence number.
func (r *Recorder) Sequence() uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
