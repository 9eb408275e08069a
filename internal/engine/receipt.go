package engine

import "github.com/google/uuid"

// ReceiptValidForMillis is the validity window stamped on consultation
// receipts: 12 hours, in milliseconds.
const ReceiptValidForMillis int64 = 12 * 60 * 60 * 1000

// Receipt is the synchronous acknowledgement returned to the proposer once a
// settlement has committed. Purchase receipts carry no validity window.
type Receipt struct {
	SettlementID   uuid.UUID `json:"settlement_id"`
	Message        string    `json:"message"`
	ValidForMillis int64     `json:"valid_for_ms,omitempty"`
}
