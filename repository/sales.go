package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/beautystore/beautypos/config"
	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/localstore"
	"github.com/beautystore/beautypos/logging"
	"github.com/beautystore/beautypos/sync"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SaleItemDraft is one line of a checkout request. A zero unit price means
// "use the product's suggested price".
type SaleItemDraft struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// SaleDraft is the caller-supplied input for a checkout.
type SaleDraft struct {
	Items           []SaleItemDraft `json:"items" validate:"required,min=1,dive"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	Fees            decimal.Decimal `json:"fees"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required"`
}

// SaleFilter narrows a sale listing.
type SaleFilter struct {
	Status domain.SaleStatus
	From   time.Time
	To     time.Time
}

// Sales is the checkout repository. Completing a sale and decrementing the
// stock of every referenced product is one atomic local write; the pairing
// never partially applies.
type Sales struct {
	store     localstore.Store
	movements localstore.MovementLog
	syncer    Syncer
	cfg       config.Config
	validate  *validator.Validate
	logger    *logging.Logger
}

// NewSales creates the checkout repository.
func NewSales(store localstore.Store, movements localstore.MovementLog, syncer Syncer, cfg config.Config) *Sales {
	return &Sales{
		store:     store,
		movements: movements,
		syncer:    syncer,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logging.WithComponent(logging.Component("sales")),
	}
}

// Create rings up a completed sale: it validates the draft, fixes prices
// and totals, decrements stock and persists sale plus stock updates as one
// atomic batch through the sync engine.
func (s *Sales) Create(ctx context.Context, draft SaleDraft) (*domain.Sale, error) {
	if err := s.validate.Struct(draft); err != nil {
		return nil, posErrors.NewValidationError(posErrors.OpApply, err)
	}
	method := domain.PaymentMethod(strings.TrimSpace(draft.PaymentMethod))
	if !method.Valid() {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("unknown payment method %q", draft.PaymentMethod))
	}
	if draft.DiscountAmount.IsNegative() || draft.DiscountPercent.IsNegative() || draft.Fees.IsNegative() {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("discount and fees must be non-negative"))
	}

	productIDs := make([]string, 0, len(draft.Items))
	for _, item := range draft.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	// Overlapping checkouts touching the same products serialize here so
	// two concurrent decrements always see each other's outcome.
	unlock := s.syncer.LockProducts(productIDs...)
	defer unlock()

	products, err := s.loadProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sale := &domain.Sale{
		ID:              domain.NewSaleID(),
		DiscountAmount:  draft.DiscountAmount,
		DiscountPercent: draft.DiscountPercent,
		Fees:            draft.Fees,
		PaymentMethod:   method,
		Status:          domain.SaleCompleted,
		Timestamp:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
		SyncState:       domain.SyncPending,
	}

	subtotal := decimal.Zero
	for _, item := range draft.Items {
		product := products[item.ProductID]
		unitPrice := item.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.SuggestedPrice
		}
		if unitPrice.IsNegative() {
			return nil, posErrors.NewValidationError(posErrors.OpApply,
				fmt.Errorf("unit price for %s must be non-negative", product.Name))
		}
		lineSubtotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID: item.ProductID,
			UnitPrice: unitPrice,
			Quantity:  item.Quantity,
			Subtotal:  lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}
	sale.Subtotal = subtotal

	if sale.DiscountAmount.IsZero() && !sale.DiscountPercent.IsZero() {
		sale.DiscountAmount = subtotal.Mul(sale.DiscountPercent).Div(oneHundred).Round(2)
	}
	if sale.DiscountAmount.GreaterThan(subtotal) {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("discount %s exceeds subtotal %s", sale.DiscountAmount, subtotal))
	}
	if sale.Fees.IsZero() && method.IsCard() {
		sale.Fees = subtotal.Sub(sale.DiscountAmount).Mul(s.cfg.CardFeePercent).Div(oneHundred).Round(2)
	}
	sale.ComputeTotals()

	ops := make([]sync.Operation, 0, 1+len(products))
	saleOp, err := encodeOp(domain.CollectionSales, domain.OpAdd, sale.ID, sale)
	if err != nil {
		return nil, err
	}
	ops = append(ops, saleOp)

	quantities := sale.QuantityByProduct()
	for _, productID := range sortedKeys(quantities) {
		product := products[productID]
		quantity := quantities[productID]
		if product.StockQuantity < quantity {
			return nil, posErrors.NewValidationError(posErrors.OpApply,
				fmt.Errorf("insufficient stock for %s: want %d, have %d",
					product.Name, quantity, product.StockQuantity))
		}
		product.StockQuantity -= quantity
		product.UpdatedAt = now
		product.SyncState = domain.SyncPending

		op, err := encodeOp(domain.CollectionProducts, domain.OpUpdate, product.ID, product)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if err := s.syncer.ApplyBatch(ctx, ops); err != nil {
		return nil, err
	}

	for _, productID := range sortedKeys(quantities) {
		s.recordMovement(ctx, productID, domain.MovementOut, quantities[productID],
			fmt.Sprintf("venda %s", sale.ID))
	}

	s.logger.Info("sale completed",
		slog.String("id", sale.ID), slog.String("total", sale.TotalAmount.String()))
	return sale, nil
}

// Cancel voids a completed sale and restores the sold quantities. The sale
// record itself has no remote counterpart to update, so its status change
// is a local-only write; the stock restorations replicate normally.
func (s *Sales) Cancel(ctx context.Context, id, reason string) (*domain.Sale, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("cancellation requires a reason"))
	}

	sale, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleCompleted {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("sale %s is %s and cannot be cancelled", id, sale.Status))
	}

	quantities := sale.QuantityByProduct()
	productIDs := sortedKeys(quantities)

	unlock := s.syncer.LockProducts(productIDs...)
	defer unlock()

	now := time.Now().UTC()
	sale.Status = domain.SaleCancelled
	sale.CancelReason = strings.TrimSpace(reason)
	sale.CancelledAt = &now
	sale.UpdatedAt = now
	sale.SyncState = domain.SyncPending

	saleOp, err := encodeOp(domain.CollectionSales, domain.OpUpdate, sale.ID, sale)
	if err != nil {
		return nil, err
	}
	saleOp.LocalOnly = true
	ops := []sync.Operation{saleOp}

	for _, productID := range productIDs {
		product, err := s.productByID(ctx, productID)
		if err != nil {
			if posErrors.IsKind(err, posErrors.KindNotFound) {
				// The product was deleted after the sale; there is no
				// stock row left to restore.
				s.logger.Warn("cancelled sale references missing product",
					slog.String("sale_id", sale.ID), slog.String("product_id", productID))
				continue
			}
			return nil, err
		}
		product.StockQuantity += quantities[productID]
		product.UpdatedAt = now
		product.SyncState = domain.SyncPending

		op, err := encodeOp(domain.CollectionProducts, domain.OpUpdate, product.ID, product)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if err := s.syncer.ApplyBatch(ctx, ops); err != nil {
		return nil, err
	}

	for _, productID := range productIDs {
		s.recordMovement(ctx, productID, domain.MovementIn, quantities[productID],
			fmt.Sprintf("cancelamento venda %s", sale.ID))
	}

	s.logger.Info("sale cancelled", slog.String("id", sale.ID), slog.String("reason", sale.CancelReason))
	return sale, nil
}

// Get returns one sale by id.
func (s *Sales) Get(ctx context.Context, id string) (*domain.Sale, error) {
	records, err := s.store.Get(ctx, domain.CollectionSales)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.ID == id {
			return decodeSale(record)
		}
	}
	return nil, posErrors.NewNotFoundError(posErrors.OpLoad,
		fmt.Errorf("sale %s not found", id))
}

// List returns sales narrowed by the filter, in insertion order.
func (s *Sales) List(ctx context.Context, filter SaleFilter) ([]domain.Sale, error) {
	records, err := s.store.Get(ctx, domain.CollectionSales)
	if err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, len(records))
	for _, record := range records {
		sale, err := decodeSale(record)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && sale.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.Timestamp.Before(filter.To) {
			continue
		}
		sales = append(sales, *sale)
	}
	return sales, nil
}

func (s *Sales) loadProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	records, err := s.store.Get(ctx, domain.CollectionProducts)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]localstore.Record, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	products := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, posErrors.NewValidationError(posErrors.OpApply,
				fmt.Errorf("unknown product %s", id))
		}
		product, err := decodeProduct(record)
		if err != nil {
			return nil, err
		}
		products[id] = product
	}
	return products, nil
}

func (s *Sales) productByID(ctx context.Context, id string) (*domain.Product, error) {
	records, err := s.store.Get(ctx, domain.CollectionProducts)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.ID == id {
			return decodeProduct(record)
		}
	}
	return nil, posErrors.NewNotFoundError(posErrors.OpLoad,
		fmt.Errorf("product %s not found", id))
}

func (s *Sales) recordMovement(ctx context.Context, productID string, movementType domain.MovementType, quantity int, reason string) {
	movement := domain.StockMovement{
		ID:        domain.NewMovementID(),
		ProductID: productID,
		Type:      movementType,
		Quantity:  quantity,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.movements.AppendMovement(ctx, movement); err != nil {
		s.logger.LogError(ctx, err, "failed to record stock movement",
			slog.String("product_id", productID))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
