package model

// EventKind names a ledger mutation.
type EventKind string

const (
	EventPoolCreated         EventKind = "pool_created"
	EventPoolWeightSet       EventKind = "pool_weight_set"
	EventOperatorRegistered  EventKind = "operator_registered"
	EventDelegated           EventKind = "delegated"
	EventStaked              EventKind = "staked"
	EventWithdrawn           EventKind = "withdrawn"
	EventWithdrawalQueued    EventKind = "withdrawal_queued"
	EventWithdrawalCompleted EventKind = "withdrawal_completed"
	EventAuthorityEnrolled   EventKind = "authority_enrolled"
	EventAuthorityExited     EventKind = "authority_exited"
	EventOperatorSlashed     EventKind = "operator_slashed"
)

// LedgerEvent is one journaled mutation. Amounts are decimal strings.
type LedgerEvent struct {
	Sequence      uint64         `json:"sequence"`
	Kind          EventKind      `json:"kind"`
	Timestamp     int64          `json:"timestamp"`
	Staker        string         `json:"staker,omitempty"`
	Operator      string         `json:"operator,omitempty"`
	Authority     string         `json:"authority,omitempty"`
	Pool          string         `json:"pool,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	Weight        uint64         `json:"weight,omitempty"`
	UnbondingSecs int64          `json:"unbonding_secs,omitempty"`
	ReadyAt       int64          `json:"ready_at,omitempty"`
	Forfeited     bool           `json:"forfeited,omitempty"`
	Payouts       []PayoutRecord `json:"payouts,omitempty"`
}

// PayoutRecord is the per-pool result of a completed withdrawal.
type PayoutRecord struct {
	Pool      string `json:"pool"`
	Shares    string `json:"shares"`
	Forfeited bool   `json:"forfeited,omitempty"`
}
