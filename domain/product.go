package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the fixed set of product categories the shop works with.
type Category string

const (
	CategoryMakeup      Category = "maquiagem"
	CategorySkincare    Category = "skincare"
	CategoryAccessories Category = "acessorios"
	CategoryFragrances  Category = "fragrancias"
	CategoryHair        Category = "cabelos"
	CategoryOther       Category = "outros"
)

// categoryCodes maps each category to the 2-letter prefix used in product
// codes. Unknown categories fall back to "PR".
var categoryCodes = map[Category]string{
	CategoryMakeup:      "MQ",
	CategorySkincare:    "SK",
	CategoryAccessories: "AC",
	CategoryFragrances:  "FR",
	CategoryHair:        "CB",
	CategoryOther:       "OT",
}

// NormalizeCategory lower-cases the input and falls back to CategoryOther
// when it is not one of the known categories.
func NormalizeCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryCodes[c]; ok {
		return c
	}
	return CategoryOther
}

// DefaultMinStockThreshold is applied when a product draft omits one.
const DefaultMinStockThreshold = 5

// Product is a catalog entry with its current stock level.
type Product struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Category          Category        `json:"category"`
	Brand             string          `json:"brand,omitempty"`
	Cost              decimal.Decimal `json:"cost"`
	SuggestedPrice    decimal.Decimal `json:"suggestedPrice"`
	StockQuantity     int             `json:"stockQuantity"`
	MinStockThreshold int             `json:"minStockThreshold"`
	Description       string          `json:"description,omitempty"`
	Supplier          string          `json:"supplier,omitempty"`
	Location          string          `json:"location,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	SyncState         SyncState       `json:"syncState"`
}

// LowStock reports whether the product is at or below its minimum
// threshold while still having stock on hand.
func (p *Product) LowStock() bool {
	return p.StockQuantity > 0 && p.StockQuantity <= p.MinStockThreshold
}

// GenerateProductCode derives a product code from the category, the name and
// the creation instant: the category's 2-letter code, the initials of the
// first two name words (or the first two characters of a single-word name),
// and the last four digits of the creation timestamp in milliseconds.
//
// The derivation is deterministic for a given name, category and instant.
// It is not collision-proof under rapid bulk creation within the same
// millisecond; record IDs, not codes, are the uniqueness anchor.
func GenerateProductCode(name string, category Category, at time.Time) string {
	catCode, ok := categoryCodes[Category(strings.ToLower(strings.TrimSpace(string(category))))]
	if !ok {
		catCode = "PR"
	}

	nameCode := nameInitials(name)
	if nameCode == "" {
		nameCode = "XX"
	}

	millis := fmt.Sprintf("%d", at.UnixMilli())
	suffix := millis
	if len(millis) > 4 {
		suffix = millis[len(millis)-4:]
	}

	return fmt.Sprintf("%s-%s-%s", catCode, nameCode, suffix)
}

func nameInitials(name string) string {
	words := strings.Fields(name)
	switch {
	case len(words) >= 2:
		return strings.ToUpper(firstRune(words[0]) + firstRune(words[1]))
	case len(words) == 1:
		r := []rune(words[0])
		if len(r) == 1 {
			return strings.ToUpper(string(r[0]))
		}
		return strings.ToUpper(string(r[:2]))
	default:
		return ""
	}
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
