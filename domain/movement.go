package domain

import "time"

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementIn     MovementType = "entrada"
	MovementOut    MovementType = "saida"
	MovementAdjust MovementType = "ajuste"
)

// StockMovement is one entry of the append-only stock audit trail.
type StockMovement struct {
	ID        string       `json:"id"`
	ProductID string       `json:"productId"`
	Type      MovementType `json:"type"`
	Quantity  int          `json:"quantity"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
