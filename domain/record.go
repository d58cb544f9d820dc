// Package domain defines the records managed by the beautypos sync core:
// products, sales, stock movements and the pending operations that carry
// unconfirmed writes towards the remote store.
package domain

// SyncState tracks whether the remote copy of a record is known to match
// the local one.
type SyncState string

const (
	// SyncPending means the remote copy is unknown or stale relative to
	// the local copy.
	SyncPending SyncState = "pending"

	// SyncSynced means the remote store acknowledged the local copy.
	SyncSynced SyncState = "synced"
)

// Collection names a logical record collection.
type Collection string

const (
	CollectionProducts Collection = "products"
	CollectionSales    Collection = "sales"
)

// OperationKind names a mutation to be replayed against the remote store.
type OperationKind string

const (
	OpAdd    OperationKind = "add"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)
