package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a sale was paid.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "dinheiro"
	PaymentCreditCard PaymentMethod = "cartao_credito"
	PaymentDebitCard  PaymentMethod = "cartao_debito"
	PaymentPix        PaymentMethod = "pix"
)

// IsCard reports whether the payment method carries the card fee.
func (m PaymentMethod) IsCard() bool {
	return m == PaymentCreditCard || m == PaymentDebitCard
}

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentPix:
		return true
	}
	return false
}

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleCancelled SaleStatus = "cancelled"
	SalePending   SaleStatus = "pending"
)

// SaleItem is one line of a sale. Unit price and subtotal are fixed at sale
// time; a sale is a snapshot of prices, not a live reference to the catalog.
type SaleItem struct {
	ProductID string          `json:"productId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Sale records a completed, cancelled or pending checkout.
type Sale struct {
	ID              string          `json:"id"`
	Items           []SaleItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Fees            decimal.Decimal `json:"fees"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Status          SaleStatus      `json:"status"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	SyncState       SyncState       `json:"syncState"`
}

// ComputeTotals fills in each item's subtotal, the sale subtotal and the
// total amount (subtotal - discount + fees). Already-set values for the
// aggregate fields are preserved only when non-zero, matching the "compute
// when omitted" contract.
func (s *Sale) ComputeTotals() {
	itemsTotal := decimal.Zero
	for i := range s.Items {
		s.Items[i].Subtotal = s.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(s.Items[i].Quantity)))
		itemsTotal = itemsTotal.Add(s.Items[i].Subtotal)
	}

	if s.Subtotal.IsZero() {
		s.Subtotal = itemsTotal
	}
	if s.TotalAmount.IsZero() {
		s.TotalAmount = s.Subtotal.Sub(s.DiscountAmount).Add(s.Fees)
	}
}

// QuantityByProduct aggregates sold quantities per product, the unit the
// stock pairing works in.
func (s *Sale) QuantityByProduct() map[string]int {
	quantities := make(map[string]int, len(s.Items))
	for _, item := range s.Items {
		quantities[item.ProductID] += item.Quantity
	}
	return quantities
}
