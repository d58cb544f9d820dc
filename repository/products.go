package repository

import (
	"context"
	"fmt"
	"log/slog"
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

// DefaultMovementWindow is how many stock movements a listing returns when
// the caller does not say otherwise.
const DefaultMovementWindow = 50

// ProductDraft is the caller-supplied input for creating a product.
type ProductDraft struct {
	Name string `json:"name" validate:"required,min=2"`

	// Code is optional; when empty one is derived from the category, the
	// name and the creation instant.
	Code     string `json:"code"`
	Category string `json:"category"`
	Brand             string          `json:"brand"`
	Cost              decimal.Decimal `json:"cost"`
	SuggestedPrice    decimal.Decimal `json:"suggestedPrice"`
	StockQuantity     int             `json:"stockQuantity" validate:"gte=0"`
	MinStockThreshold int             `json:"minStockThreshold" validate:"gte=0"`
	Description       string          `json:"description"`
	Supplier          string          `json:"supplier"`
	Location          string          `json:"location"`
}

// ProductPatch carries partial updates; nil fields are left untouched.
type ProductPatch struct {
	Name              *string          `json:"name,omitempty"`
	Code              *string          `json:"code,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Brand             *string          `json:"brand,omitempty"`
	Cost              *decimal.Decimal `json:"cost,omitempty"`
	SuggestedPrice    *decimal.Decimal `json:"suggestedPrice,omitempty"`
	StockQuantity     *int             `json:"stockQuantity,omitempty"`
	MinStockThreshold *int             `json:"minStockThreshold,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Supplier          *string          `json:"supplier,omitempty"`
	Location          *string          `json:"location,omitempty"`
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Category     string
	LowStockOnly bool

	// Search matches case-insensitively against name, code and brand.
	Search string
}

// Products is the catalog repository.
type Products struct {
	store     localstore.Store
	movements localstore.MovementLog
	syncer    Syncer
	cfg       config.Config
	validate  *validator.Validate
	logger    *logging.Logger
}

// NewProducts creates the catalog repository.
func NewProducts(store localstore.Store, movements localstore.MovementLog, syncer Syncer, cfg config.Config) *Products {
	return &Products{
		store:     store,
		movements: movements,
		syncer:    syncer,
		cfg:       cfg,
		validate:  validator.New(),
		logger:    logging.WithComponent(logging.Component("products")),
	}
}

// Create validates the draft, derives the product code and applies the add
// through the sync engine. An initial stock quantity is recorded as an
// entry movement.
func (p *Products) Create(ctx context.Context, draft ProductDraft) (*domain.Product, error) {
	if err := p.validate.Struct(draft); err != nil {
		return nil, posErrors.NewValidationError(posErrors.OpApply, err)
	}
	if draft.Cost.IsNegative() || draft.SuggestedPrice.IsNegative() {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("cost and suggested price must be non-negative"))
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:                domain.NewProductID(),
		Name:              strings.TrimSpace(draft.Name),
		Category:          domain.NormalizeCategory(draft.Category),
		Brand:             draft.Brand,
		Cost:              draft.Cost,
		SuggestedPrice:    draft.SuggestedPrice,
		StockQuantity:     draft.StockQuantity,
		MinStockThreshold: draft.MinStockThreshold,
		Description:       draft.Description,
		Supplier:          draft.Supplier,
		Location:          draft.Location,
		CreatedAt:         now,
		UpdatedAt:         now,
		SyncState:         domain.SyncPending,
	}
	if product.MinStockThreshold == 0 {
		product.MinStockThreshold = p.cfg.MinStockThreshold
	}
	product.Code = strings.TrimSpace(draft.Code)
	if product.Code == "" {
		// The raw category drives the derived code so a typo yields the
		// generic PR prefix instead of silently becoming an "other" code.
		// An omitted category is a deliberate "other".
		codeCategory := domain.Category(draft.Category)
		if strings.TrimSpace(draft.Category) == "" {
			codeCategory = product.Category
		}
		product.Code = domain.GenerateProductCode(product.Name, codeCategory, now)
	}

	op, err := encodeOp(domain.CollectionProducts, domain.OpAdd, product.ID, product)
	if err != nil {
		return nil, err
	}
	if err := p.syncer.Apply(ctx, op); err != nil {
		return nil, err
	}

	if product.StockQuantity > 0 {
		p.recordMovement(ctx, product.ID, domain.MovementIn, product.StockQuantity, "estoque inicial")
	}

	p.logger.Info("product created",
		slog.String("id", product.ID), slog.String("code", product.Code))
	return product, nil
}

// Update applies a partial update. A stock change through this path is
// recorded as an adjustment movement.
func (p *Products) Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	unlock := p.syncer.LockProducts(id)
	defer unlock()

	product, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stockBefore := product.StockQuantity
	applyPatch(product, patch)
	if product.Cost.IsNegative() || product.SuggestedPrice.IsNegative() {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("cost and suggested price must be non-negative"))
	}
	if strings.TrimSpace(product.Name) == "" {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("product name must not be empty"))
	}
	product.UpdatedAt = time.Now().UTC()
	product.SyncState = domain.SyncPending

	op, err := encodeOp(domain.CollectionProducts, domain.OpUpdate, product.ID, product)
	if err != nil {
		return nil, err
	}
	if err := p.syncer.Apply(ctx, op); err != nil {
		return nil, err
	}

	if delta := product.StockQuantity - stockBefore; delta != 0 {
		p.recordMovement(ctx, product.ID, domain.MovementAdjust, delta, "ajuste manual")
	}
	return product, nil
}

// Delete removes a product from the catalog.
func (p *Products) Delete(ctx context.Context, id string) error {
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return p.syncer.Apply(ctx, sync.Operation{
		Collection: domain.CollectionProducts,
		Kind:       domain.OpDelete,
		RecordID:   id,
	})
}

// Get returns one product by id.
func (p *Products) Get(ctx context.Context, id string) (*domain.Product, error) {
	records, err := p.store.Get(ctx, domain.CollectionProducts)
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

// List returns the catalog, newest entries last, narrowed by the filter.
func (p *Products) List(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	records, err := p.store.Get(ctx, domain.CollectionProducts)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(records))
	for _, record := range records {
		product, err := decodeProduct(record)
		if err != nil {
			return nil, err
		}
		if filter.Category != "" && product.Category != domain.NormalizeCategory(filter.Category) {
			continue
		}
		if filter.LowStockOnly && !product.LowStock() {
			continue
		}
		if search != "" && !matchesSearch(product, search) {
			continue
		}
		products = append(products, *product)
	}
	return products, nil
}

// AdjustStock moves stock in or out of a product. Positive deltas are
// entries, negative deltas exits.
func (p *Products) AdjustStock(ctx context.Context, id string, delta int, reason string) (*domain.Product, error) {
	if delta == 0 {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("stock adjustment must not be zero"))
	}

	unlock := p.syncer.LockProducts(id)
	defer unlock()

	product, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.StockQuantity+delta < 0 {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("cannot remove %d units, only %d in stock", -delta, product.StockQuantity))
	}

	product.StockQuantity += delta
	product.UpdatedAt = time.Now().UTC()
	product.SyncState = domain.SyncPending

	op, err := encodeOp(domain.CollectionProducts, domain.OpUpdate, product.ID, product)
	if err != nil {
		return nil, err
	}
	if err := p.syncer.Apply(ctx, op); err != nil {
		return nil, err
	}

	movementType := domain.MovementIn
	quantity := delta
	if delta < 0 {
		movementType = domain.MovementOut
		quantity = -delta
	}
	p.recordMovement(ctx, product.ID, movementType, quantity, reason)
	return product, nil
}

// Movements returns the most recent stock movements, newest first.
func (p *Products) Movements(ctx context.Context, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 {
		limit = DefaultMovementWindow
	}
	return p.movements.RecentMovements(ctx, limit)
}

// recordMovement appends to the audit trail. The trail is advisory; a
// failed append is logged, never surfaced, so it cannot undo a stock write
// that already committed.
func (p *Products) recordMovement(ctx context.Context, productID string, movementType domain.MovementType, quantity int, reason string) {
	movement := domain.StockMovement{
		ID:        domain.NewMovementID(),
		ProductID: productID,
		Type:      movementType,
		Quantity:  quantity,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.movements.AppendMovement(ctx, movement); err != nil {
		p.logger.LogError(ctx, err, "failed to record stock movement",
			slog.String("product_id", productID))
	}
}

func applyPatch(product *domain.Product, patch ProductPatch) {
	if patch.Name != nil {
		product.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Code != nil && strings.TrimSpace(*patch.Code) != "" {
		product.Code = strings.TrimSpace(*patch.Code)
	}
	if patch.Category != nil {
		product.Category = domain.NormalizeCategory(*patch.Category)
	}
	if patch.Brand != nil {
		product.Brand = *patch.Brand
	}
	if patch.Cost != nil {
		product.Cost = *patch.Cost
	}
	if patch.SuggestedPrice != nil {
		product.SuggestedPrice = *patch.SuggestedPrice
	}
	if patch.StockQuantity != nil {
		product.StockQuantity = *patch.StockQuantity
	}
	if patch.MinStockThreshold != nil {
		product.MinStockThreshold = *patch.MinStockThreshold
	}
	if patch.Description != nil {
		product.Description = *patch.Description
	}
	if patch.Supplier != nil {
		product.Supplier = *patch.Supplier
	}
	if patch.Location != nil {
		product.Location = *patch.Location
	}
}

func matchesSearch(product *domain.Product, search string) bool {
	return strings.Contains(strings.ToLower(product.Name), search) ||
		strings.Contains(strings.ToLower(product.Code), search) ||
		strings.Contains(strings.ToLower(product.Brand), search) ||
		strings.Contains(strings.ToLower(product.Description), search)
}
