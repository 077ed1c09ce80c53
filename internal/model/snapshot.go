package model

// LedgerSnapshot is a full, serializable copy of ledger state.
type LedgerSnapshot struct {
	Sequence    uint64           `json:"sequence"`
	TakenAt     int64            `json:"taken_at"`
	TotalWeight uint64           `json:"total_weight"`
	Pools       []PoolRecord     `json:"pools"`
	Stakers     []StakerRecord   `json:"stakers"`
	Operators   []OperatorRecord `json:"operators"`
}

// PoolRecord describes one pool and its aggregate share supply.
type PoolRecord struct {
	Asset       string `json:"asset"`
	Weight      uint64 `json:"weight"`
	TotalShares string `json:"total_shares"`
	Forfeited   string `json:"forfeited"`
}

// Position is a share balance held in one pool.
type Position struct {
	Pool   string `json:"pool"`
	Shares string `json:"shares"`
}

// StakerRecord holds a staker's delegation, pool index order and pending withdrawal.
type StakerRecord struct {
	Staker    string             `json:"staker"`
	Delegate  string             `json:"delegate,omitempty"`
	Positions []Position         `json:"positions,omitempty"`
	Pending   *WithdrawalRequest `json:"pending,omitempty"`
}

// OperatorRecord holds delegated shares and slashing state for an operator.
type OperatorRecord struct {
	Operator      string     `json:"operator"`
	Registered    bool       `json:"registered"`
	UnbondingSecs int64      `json:"unbonding_secs"`
	Slashed       bool       `json:"slashed,omitempty"`
	SlashedAt     int64      `json:"slashed_at,omitempty"`
	Authorities   []string   `json:"authorities,omitempty"`
	Positions     []Position `json:"positions,omitempty"`
}

// WithdrawalRequest is a queued two-phase withdrawal.
type WithdrawalRequest struct {
	Operator string `json:"operator,omitempty"`
	QueuedAt int64  `json:"queued_at"`
	ReadyAt  int64  `json:"ready_at"`
}
