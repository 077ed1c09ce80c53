package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"restakeLedger/internal/model"
)

// SlashingRegistry tracks which authorities each operator opted into and
// whether the operator has been slashed. It holds no reference to the ledger;
// a ledger built over it shares its mutation lock through serial.
type SlashingRegistry struct {
	mu          sync.RWMutex
	serial      sync.Locker
	verifier    ProofVerifier
	opts        options
	slashedAt   map[common.Address]time.Time
	authorities map[common.Address][]common.Address
}

func NewSlashingRegistry(verifier ProofVerifier, opts ...Option) *SlashingRegistry {
	if verifier == nil {
		verifier = FlagVerifier{}
	}
	return &SlashingRegistry{
		verifier:    verifier,
		opts:        buildOptions(opts),
		slashedAt:   make(map[common.Address]time.Time),
		authorities: make(map[common.Address][]common.Address),
	}
}

// Enroll lets authority submit slash proofs against operator. Enrolling the
// same authority again is a no-op.
func (s *SlashingRegistry) Enroll(operator, authority common.Address) error {
	if operator == (common.Address{}) || authority == (common.Address{}) {
		return s.reject("enroll", ErrZeroAddress)
	}

	defer s.lockWrite()()

	if _, slashed := s.slashedAt[operator]; slashed {
		return s.reject("enroll", ErrOperatorSlashed)
	}
	if s.isAuthority(operator, authority) {
		return nil
	}
	s.authorities[operator] = append(s.authorities[operator], authority)

	s.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventAuthorityEnrolled,
		Timestamp: s.opts.clock().Unix(),
		Operator:  operator.Hex(),
		Authority: authority.Hex(),
	})
	s.opts.logger.Info("authority enrolled", zap.String("operator", operator.Hex()), zap.String("authority", authority.Hex()))
	return nil
}

// Exit revokes an authority. It takes effect immediately and never undoes a slash.
func (s *SlashingRegistry) Exit(operator, authority common.Address) error {
	defer s.lockWrite()()

	list := s.authorities[operator]
	for i, existing := range list {
		if existing != authority {
			continue
		}
		list[i] = list[len(list)-1]
		list = list[:len(list)-1]
		if len(list) == 0 {
			delete(s.authorities, operator)
		} else {
			s.authorities[operator] = list
		}

		s.opts.recorder.record(model.LedgerEvent{
			Kind:      model.EventAuthorityExited,
			Timestamp: s.opts.clock().Unix(),
			Operator:  operator.Hex(),
			Authority: authority.Hex(),
		})
		s.opts.logger.Info("authority exited", zap.String("operator", operator.Hex()), zap.String("authority", authority.Hex()))
		return nil
	}
	return nil
}

// Slash marks operator as slashed if caller is one of its authorities and the
// proof verifies. The flag is permanent; repeat slashes keep the first time.
func (s *SlashingRegistry) Slash(ctx context.Context, caller, operator common.Address, proof model.SlashProof) error {
	defer s.lockWrite()()

	if !s.isAuthority(operator, caller) {
		return s.reject("slash", ErrNotAllowedToSlash)
	}
	if err := s.verifier.Verify(ctx, operator, proof); err != nil {
		return s.reject("slash", fmt.Errorf("%w: %v", ErrInvalidProof, err))
	}
	if _, slashed := s.slashedAt[operator]; slashed {
		return nil
	}

	now := s.opts.clock()
	s.slashedAt[operator] = now
	slashCount.Inc()

	s.opts.recorder.record(model.LedgerEvent{
		Kind:      model.EventOperatorSlashed,
		Timestamp: now.Unix(),
		Operator:  operator.Hex(),
		Authority: caller.Hex(),
	})
	s.opts.logger.Warn("operator slashed", zap.String("operator", operator.Hex()), zap.String("authority", caller.Hex()))
	return nil
}

// serializeWith orders every registry mutation with the ledger's own, so a
// slash cannot land while a withdrawal is between its flag check and its event.
func (s *SlashingRegistry) serializeWith(lock sync.Locker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serial != nil {
		panic("ledger: slashing registry already serialized with a ledger")
	}
	s.serial = lock
}

// lockWrite takes the shared ledger lock, when bound, ahead of the registry's own.
func (s *SlashingRegistry) lockWrite() func() {
	s.mu.RLock()
	serial := s.serial
	s.mu.RUnlock()
	if serial != nil {
		serial.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if serial != nil {
			serial.Unlock()
		}
	}
}

func (s *SlashingRegistry) isAuthority(operator, authority common.Address) bool {
	for _, existing := range s.authorities[operator] {
		if existing == authority {
			return true
		}
	}
	return false
}

func (s *SlashingRegistry) reject(op string, err error) error {
	rejectedCount.WithLabelValues(ClassOf(err).String()).Inc()
	s.opts.logger.Debug("operation rejected", zap.String("op", op), zap.Error(err))
	return err
}

func (s *SlashingRegistry) IsSlashed(operator common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, slashed := s.slashedAt[operator]
	return slashed
}

// SlashedAt returns when operator was first slashed.
func (s *SlashingRegistry) SlashedAt(operator common.Address) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, slashed := s.slashedAt[operator]
	return at, slashed
}

// Authorities returns the authorities operator has enrolled, in no particular order.
func (s *SlashingRegistry) Authorities(operator common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.Address(nil), s.authorities[operator]...)
}
