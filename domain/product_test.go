package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProductCode(t *testing.T) {
	at := time.UnixMilli(1712345678901)

	tests := []struct {
		name     string
		product  string
		category Category
		want     string
	}{
		{"two words", "Pó Compacto", CategoryMakeup, "MQ-PC-8901"},
		{"single word", "Batom", CategoryMakeup, "MQ-BA-8901"},
		{"skincare", "Sérum Facial", CategorySkincare, "SK-SF-8901"},
		{"unknown category falls back", "Creme Hidratante", Category("perfumaria"), "PR-CH-8901"},
		{"other category", "Creme Hidratante", CategoryOther, "OT-CH-8901"},
		{"hair", "Shampoo Nutritivo", CategoryHair, "CB-SN-8901"},
		{"three words uses first two", "Base Liquida Matte", CategoryMakeup, "MQ-BL-8901"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateProductCode(tt.product, tt.category, at)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateProductCodeDeterministic(t *testing.T) {
	at := time.Now()
	first := GenerateProductCode("Pó Compacto", CategoryMakeup, at)
	second := GenerateProductCode("Pó Compacto", CategoryMakeup, at)
	require.Equal(t, first, second)
	assert.Regexp(t, `^MQ-PC-\d{4}$`, first)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, CategoryMakeup, NormalizeCategory("Maquiagem"))
	assert.Equal(t, CategorySkincare, NormalizeCategory(" skincare "))
	assert.Equal(t, CategoryOther, NormalizeCategory("eletronicos"))
	assert.Equal(t, CategoryOther, NormalizeCategory(""))
}

func TestLowStock(t *testing.T) {
	tests := []struct {
		stock     int
		threshold int
		want      bool
	}{
		{0, 5, false}, // out of stock is not "low stock"
		{3, 5, true},
		{5, 5, true},
		{6, 5, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("stock=%d threshold=%d", tt.stock, tt.threshold), func(t *testing.T) {
			p := Product{StockQuantity: tt.stock, MinStockThreshold: tt.threshold}
			assert.Equal(t, tt.want, p.LowStock())
		})
	}
}

func TestNewRecordIDs(t *testing.T) {
	productID := NewProductID()
	saleID := NewSaleID()

	assert.Regexp(t, `^PROD-`, productID)
	assert.Regexp(t, `^VEND-`, saleID)
	assert.NotEqual(t, NewProductID(), productID)
}
