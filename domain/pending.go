package domain

import (
	"encoding/json"
	"time"
)

// PendingOperation is one not-yet-confirmed mutation waiting for replay
// against the remote store. It is created when a write cannot be confirmed
// remotely, consumed only after a confirmed acknowledgment, and never
// silently dropped.
type PendingOperation struct {
	// Seq is assigned by the queue and fixes the replay order.
	Seq int64 `json:"seq"`

	Collection Collection    `json:"collection"`
	Kind       OperationKind `json:"kind"`

	// RecordID is the id of the record the operation targets.
	RecordID string `json:"recordId"`

	// Payload is the record body for add/update, or {"id": ...} for delete.
	Payload json.RawMessage `json:"payload"`

	EnqueuedAt   time.Time `json:"enqueuedAt"`
	AttemptCount int       `json:"attemptCount"`
}
