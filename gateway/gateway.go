// Package gateway defines the stateless request/response contract with the
// remote store. The gateway translates domain operations to remote calls
// and normalizes responses and errors; it never caches and never retries —
// retry policy belongs to the sync engine.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beautystore/beautypos/domain"
)

// Action names a domain verb understood by the remote endpoint.
type Action string

const (
	ActionGetProducts   Action = "getProducts"
	ActionAddProduct    Action = "addProduct"
	ActionUpdateProduct Action = "updateProduct"
	ActionDeleteProduct Action = "deleteProduct"
	ActionGetSales      Action = "getSales"
	ActionAddSale       Action = "addSale"

	// ActionPing is the connectivity probe; the remote answers it without
	// touching any sheet.
	ActionPing Action = "test"
)

// ActionFor maps a collection and operation kind to the remote action.
// Add operations carry a locally assigned id the remote upserts by, which
// is what makes replaying an ambiguous failure idempotent.
func ActionFor(collection domain.Collection, kind domain.OperationKind) (Action, error) {
	switch collection {
	case domain.CollectionProducts:
		switch kind {
		case domain.OpAdd:
			return ActionAddProduct, nil
		case domain.OpUpdate:
			return ActionUpdateProduct, nil
		case domain.OpDelete:
			return ActionDeleteProduct, nil
		}
	case domain.CollectionSales:
		if kind == domain.OpAdd {
			return ActionAddSale, nil
		}
	}
	return "", fmt.Errorf("no remote action for %s/%s", collection, kind)
}

// Response is the normalized remote response envelope.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Fallback hints that the caller should serve from the local cache
	// without alarming the user.
	Fallback bool `json:"fallback,omitempty"`
}

// DecodeData unmarshals the response payload into out.
func (r *Response) DecodeData(out interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response carries no data")
	}
	return json.Unmarshal(r.Data, out)
}

// Caller issues one remote call per invocation. Implementations classify
// failures as network, remote or parse errors and never retry internally.
type Caller interface {
	Call(ctx context.Context, action Action, payload interface{}) (*Response, error)
}
