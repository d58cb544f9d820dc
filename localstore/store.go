// Package localstore defines the on-device persistence contracts: the
// key-indexed record store that is the source of truth for immediate reads
// and writes, the durable pending-operation queue, the stock-movement audit
// log and scalar settings storage.
package localstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/beautystore/beautypos/domain"
)

// Record is one persisted record of a collection. The body is the
// JSON-encoded domain record; the store does not interpret it beyond the
// identity and sync-state columns.
type Record struct {
	Collection domain.Collection
	ID         string
	Body       json.RawMessage
	SyncState  domain.SyncState
	UpdatedAt  time.Time
}

// Store is the canonical on-device copy of every collection. All
// operations are durable before they return and immediately visible to
// subsequent Gets (read-your-writes). Implementations linearize mutations
// in call order.
type Store interface {
	// Get returns every record of a collection in insertion order.
	Get(ctx context.Context, collection domain.Collection) ([]Record, error)

	// Put upserts a record by id.
	Put(ctx context.Context, record Record) error

	// PutBatch upserts several records as one atomic unit. Either every
	// record is applied or none is.
	PutBatch(ctx context.Context, records []Record) error

	// Remove deletes a record by id, reporting false (not an error) when
	// the id was not found.
	Remove(ctx context.Context, collection domain.Collection, id string) (bool, error)

	// SetSyncState updates only the sync-state column of a record.
	SetSyncState(ctx context.Context, collection domain.Collection, id string, state domain.SyncState) error

	Close() error
}

// Queue is the ordered durable log of not-yet-confirmed mutations. Replay
// order is FIFO per collection; operations survive process restarts.
type Queue interface {
	// Enqueue appends an operation, assigning its Seq.
	Enqueue(ctx context.Context, op *domain.PendingOperation) error

	// PeekAll returns every queued operation in enqueue order without
	// consuming anything.
	PeekAll(ctx context.Context) ([]domain.PendingOperation, error)

	// Dequeue removes the operation with the given Seq after a confirmed
	// remote acknowledgment.
	Dequeue(ctx context.Context, seq int64) error

	// IncrementAttempt bumps the attempt counter of a queued operation.
	IncrementAttempt(ctx context.Context, seq int64) error

	// Count reports how many operations are queued.
	Count(ctx context.Context) (int, error)
}

// MovementLog is the append-only stock audit trail. Storage is unbounded;
// reads are windowed for display.
type MovementLog interface {
	AppendMovement(ctx context.Context, movement domain.StockMovement) error

	// RecentMovements returns up to limit movements, most recent first.
	RecentMovements(ctx context.Context, limit int) ([]domain.StockMovement, error)
}

// Settings stores the scalar configuration values consumed by the pricing
// collaborator.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}
