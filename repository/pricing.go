package repository

import (
	"fmt"

	"github.com/beautystore/beautypos/config"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// PriceQuote is the outcome of a price suggestion.
type PriceQuote struct {
	Cost           decimal.Decimal `json:"cost"`
	Markup         decimal.Decimal `json:"markup"`
	SuggestedPrice decimal.Decimal `json:"suggestedPrice"`
	RealMargin     decimal.Decimal `json:"realMargin"`
}

// SuggestPrice computes a selling price from the unit cost and the
// configured card fee, tax and target margin percentages. The markup is
// 1 / (1 - (fee + tax + margin)/100); with the out-of-the-box rates that
// lands near 1.98.
func SuggestPrice(cost decimal.Decimal, cfg config.Config) (*PriceQuote, error) {
	if !cost.IsPositive() {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("cost must be positive, got %s", cost))
	}

	rates := cfg.CardFeePercent.Add(cfg.TaxPercent).Add(cfg.TargetMarginPercent).Div(oneHundred)
	if rates.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, posErrors.NewValidationError(posErrors.OpApply,
			fmt.Errorf("fees, tax and margin sum to %s%%, leaving no price to sell at",
				rates.Mul(oneHundred)))
	}

	markup := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(1).Sub(rates), 4)
	price := cost.Mul(markup).Round(2)
	realMargin := price.Sub(cost).DivRound(price, 4).Mul(oneHundred)

	return &PriceQuote{
		Cost:           cost,
		Markup:         markup,
		SuggestedPrice: price,
		RealMargin:     realMargin,
	}, nil
}
