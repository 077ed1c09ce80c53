package model

// PoolAudit compares ledger liabilities for a pool with its on-chain custody balance.
// CustodyDisplay is the balance in whole token units.
type PoolAudit struct {
	Asset          string    `json:"asset"`
	Token          TokenMeta `json:"token"`
	Block          uint64    `json:"block"`
	TotalShares    string    `json:"total_shares"`
	Forfeited      string    `json:"forfeited"`
	Liabilities    string    `json:"liabilities"`
	CustodyBalance string    `json:"custody_balance"`
	CustodyDisplay string    `json:"custody_display"`
	Shortfall      string    `json:"shortfall,omitempty"`
}

// TokenMeta describes a pool asset's ERC20 contract. Symbol and Name may be
// empty for tokens that do not implement them.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}
