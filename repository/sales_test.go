package repository

import (
	"context"
	stdSync "sync"
	"testing"

	"github.com/beautystore/beautypos/domain"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, env *repoEnv, name string, stock int, price float64) *domain.Product {
	t.Helper()
	product, err := env.products.Create(context.Background(), ProductDraft{
		Name:           name,
		Category:       "maquiagem",
		SuggestedPrice: decimal.NewFromFloat(price),
		StockQuantity:  stock,
	})
	require.NoError(t, err)
	return product
}

func TestCreateSaleDecrementsStock(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Batom Matte", 10, 25)

	first, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 3}},
		PaymentMethod: "dinheiro",
	})
	require.NoError(t, err)

	second, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 2}},
		PaymentMethod: "pix",
	})
	require.NoError(t, err)

	reloaded, err := env.products.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.StockQuantity, "10 - 3 - 2")

	assert.Equal(t, domain.SaleCompleted, first.Status)
	assert.True(t, first.Subtotal.Equal(decimal.NewFromInt(75)), "unit price defaults to the suggested price")
	assert.True(t, first.TotalAmount.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, domain.SaleCompleted, second.Status)

	movements, err := env.products.Movements(ctx, 0)
	require.NoError(t, err)
	// Newest first: saida 2, saida 3, entrada 10.
	require.Len(t, movements, 3)
	assert.Equal(t, domain.MovementOut, movements[0].Type)
	assert.Equal(t, 2, movements[0].Quantity)
	assert.Equal(t, domain.MovementOut, movements[1].Type)
	assert.Equal(t, 3, movements[1].Quantity)
}

func TestConcurrentSalesSerializeStockDecrements(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Esmalte Vermelho", 10, 15)

	quantities := []int{3, 2}
	errs := make([]error, len(quantities))

	var wg stdSync.WaitGroup
	for i, quantity := range quantities {
		wg.Add(1)
		go func(i, quantity int) {
			defer wg.Done()
			_, errs[i] = env.sales.Create(ctx, SaleDraft{
				Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: quantity}},
				PaymentMethod: "pix",
			})
		}(i, quantity)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	reloaded, err := env.products.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.StockQuantity,
		"overlapping checkouts serialize their read-modify-write, 10 - 3 - 2")

	sales, err := env.sales.List(ctx, SaleFilter{Status: domain.SaleCompleted})
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestCreateSaleCardFeeDefaulting(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Base Líquida", 10, 50)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 2}},
		PaymentMethod: "cartao_credito",
	})
	require.NoError(t, err)

	assert.True(t, sale.Subtotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, sale.Fees.Equal(decimal.NewFromFloat(3.5)), "3.5%% card fee on the discounted subtotal")
	assert.True(t, sale.TotalAmount.Equal(decimal.NewFromFloat(103.5)))
}

func TestCreateSaleExplicitFeesAreKept(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Gloss Labial", 5, 20)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
		Fees:          decimal.NewFromFloat(1.25),
		PaymentMethod: "cartao_debito",
	})
	require.NoError(t, err)
	assert.True(t, sale.Fees.Equal(decimal.NewFromFloat(1.25)), "caller-supplied fees are not overwritten")
}

func TestCreateSaleDiscountPercent(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Paleta de Sombras", 4, 100)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:           []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
		DiscountPercent: decimal.NewFromInt(10),
		PaymentMethod:   "dinheiro",
	})
	require.NoError(t, err)

	assert.True(t, sale.DiscountAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, sale.TotalAmount.Equal(decimal.NewFromInt(90)))
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Delineador", 2, 30)

	_, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 3}},
		PaymentMethod: "pix",
	})
	require.Error(t, err)
	assert.Equal(t, posErrors.KindValidation, posErrors.KindOf(err))

	reloaded, err := env.products.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.StockQuantity, "a rejected sale leaves stock untouched")

	sales, err := env.sales.List(ctx, SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleValidation(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Corretivo", 5, 18)

	tests := []struct {
		name  string
		draft SaleDraft
	}{
		{"no items", SaleDraft{PaymentMethod: "pix"}},
		{"zero quantity", SaleDraft{
			Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 0}},
			PaymentMethod: "pix",
		}},
		{"unknown payment method", SaleDraft{
			Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
			PaymentMethod: "cheque",
		}},
		{"unknown product", SaleDraft{
			Items:         []SaleItemDraft{{ProductID: "PROD-missing", Quantity: 1}},
			PaymentMethod: "pix",
		}},
		{"negative discount", SaleDraft{
			Items:          []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
			DiscountAmount: decimal.NewFromInt(-1),
			PaymentMethod:  "pix",
		}},
		{"discount above subtotal", SaleDraft{
			Items:          []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
			DiscountAmount: decimal.NewFromInt(1000),
			PaymentMethod:  "pix",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sales.Create(ctx, tt.draft)
			require.Error(t, err)
			assert.Equal(t, posErrors.KindValidation, posErrors.KindOf(err))
		})
	}
}

func TestCancelSaleRestoresStock(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Pó Translúcido", 10, 40)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 4}},
		PaymentMethod: "dinheiro",
	})
	require.NoError(t, err)

	cancelled, err := env.sales.Cancel(ctx, sale.ID, "cliente desistiu")
	require.NoError(t, err)

	assert.Equal(t, domain.SaleCancelled, cancelled.Status)
	assert.Equal(t, "cliente desistiu", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	reloaded, err := env.products.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.StockQuantity, "cancellation restores the sold quantity exactly")

	movements, err := env.products.Movements(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, movements)
	assert.Equal(t, domain.MovementIn, movements[0].Type)
	assert.Equal(t, 4, movements[0].Quantity)
}

func TestCancelSaleStatusChangeStaysLocal(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Máscara Capilar", 6, 35)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod: "pix",
	})
	require.NoError(t, err)

	_, err = env.sales.Cancel(ctx, sale.ID, "produto com defeito")
	require.NoError(t, err)

	ops, err := env.store.PeekAll(ctx)
	require.NoError(t, err)

	saleOps := 0
	for _, op := range ops {
		if op.Collection == domain.CollectionSales {
			saleOps++
			assert.Equal(t, domain.OpAdd, op.Kind,
				"only the original add is replayable; the remote has no sale update")
		}
	}
	assert.Equal(t, 1, saleOps)
}

func TestCancelSaleRules(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Sabonete Facial", 6, 22)

	sale, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod: "dinheiro",
	})
	require.NoError(t, err)

	_, err = env.sales.Cancel(ctx, sale.ID, "   ")
	require.Error(t, err, "cancellation without a reason is rejected")
	assert.Equal(t, posErrors.KindValidation, posErrors.KindOf(err))

	_, err = env.sales.Cancel(ctx, sale.ID, "troca")
	require.NoError(t, err)

	_, err = env.sales.Cancel(ctx, sale.ID, "de novo")
	require.Error(t, err, "a cancelled sale cannot be cancelled again")
	assert.Equal(t, posErrors.KindValidation, posErrors.KindOf(err))

	_, err = env.sales.Cancel(ctx, "VEND-missing", "motivo")
	require.Error(t, err)
	assert.Equal(t, posErrors.KindNotFound, posErrors.KindOf(err))
}

func TestListSalesFilters(t *testing.T) {
	env := newRepoEnv(t)
	ctx := context.Background()
	product := seedProduct(t, env, "Protetor Solar", 20, 60)

	first, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 1}},
		PaymentMethod: "pix",
	})
	require.NoError(t, err)

	second, err := env.sales.Create(ctx, SaleDraft{
		Items:         []SaleItemDraft{{ProductID: product.ID, Quantity: 2}},
		PaymentMethod: "dinheiro",
	})
	require.NoError(t, err)

	_, err = env.sales.Cancel(ctx, first.ID, "arrependimento")
	require.NoError(t, err)

	completed, err := env.sales.List(ctx, SaleFilter{Status: domain.SaleCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, second.ID, completed[0].ID)

	cancelled, err := env.sales.List(ctx, SaleFilter{Status: domain.SaleCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, first.ID, cancelled[0].ID)

	all, err := env.sales.List(ctx, SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
