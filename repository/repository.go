// Package repository exposes the domain operations the UI layers consume:
// product catalog management, checkout and cancellation, stock movements
// and price suggestion. Repositories read the local store directly but
// route every write through the sync engine; they never mutate records or
// sync state on their own.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/localstore"
	"github.com/beautystore/beautypos/sync"
)

// Syncer is the write path every repository mutation goes through.
// *sync.Engine implements it.
type Syncer interface {
	Apply(ctx context.Context, op sync.Operation) error
	ApplyBatch(ctx context.Context, ops []sync.Operation) error
	LockProducts(ids ...string) func()
}

func decodeProduct(record localstore.Record) (*domain.Product, error) {
	var product domain.Product
	if err := json.Unmarshal(record.Body, &product); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad,
			fmt.Errorf("corrupt product record %s: %w", record.ID, err))
	}
	product.SyncState = record.SyncState
	return &product, nil
}

func decodeSale(record localstore.Record) (*domain.Sale, error) {
	var sale domain.Sale
	if err := json.Unmarshal(record.Body, &sale); err != nil {
		return nil, posErrors.NewStorageError(posErrors.OpLoad,
			fmt.Errorf("corrupt sale record %s: %w", record.ID, err))
	}
	sale.SyncState = record.SyncState
	return &sale, nil
}

func encodeOp(collection domain.Collection, kind domain.OperationKind, id string, record interface{}) (sync.Operation, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return sync.Operation{}, posErrors.NewStorageError(posErrors.OpStore,
			fmt.Errorf("failed to encode %s record: %w", collection, err))
	}
	return sync.Operation{
		Collection: collection,
		Kind:       kind,
		RecordID:   id,
		Body:       body,
	}, nil
}
