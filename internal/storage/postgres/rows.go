package postgres

import (
	"encoding/json"
	"fmt"

	"restakeLedger/internal/model"
)

// eventRow maps an event to the ledger_events insert arguments. Empty text
// columns are stored as NULL.
func eventRow(ev model.LedgerEvent) ([]any, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %d: %w", ev.Sequence, err)
	}
	return []any{
		int64(ev.Sequence),
		string(ev.Kind),
		ev.Timestamp,
		nullable(ev.Staker),
		nullable(ev.Operator),
		nullable(ev.Authority),
		nullable(ev.Pool),
		nullable(ev.Amount),
		ev.Forfeited,
		payload,
	}, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
