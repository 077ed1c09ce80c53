package storage

import "restakeLedger/internal/model"

// EventSink receives journaled ledger events in sequence order.
type EventSink interface {
	PutEventBatch(events []model.LedgerEvent) error
}
