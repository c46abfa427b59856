package taxcalc

import (
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// CalculationInput describes a single disposal for Calculate.
type CalculationInput struct {
	PurchasePrice  decimal.Decimal      `json:"purchasePrice"`
	SalePrice      decimal.Decimal      `json:"salePrice"`
	PurchaseDate   time.Time            `json:"purchaseDate"`
	SaleDate       time.Time            `json:"saleDate"`
	Quantity       decimal.Decimal      `json:"quantity"`
	InvestmentType model.InvestmentType `json:"investmentType"`

	// Indexation defaults to true when nil. Only affects non-equity LTCG.
	Indexation *bool `json:"indexationBenefit,omitempty"`
}

// Validate rejects inputs Calculate cannot price.
func (in CalculationInput) Validate() error {
	switch {
	case !in.Quantity.IsPositive():
		return &model.ValidationError{Field: "quantity", Reason: "must be positive"}
	case in.PurchasePrice.IsNegative():
		return &model.ValidationError{Field: "purchasePrice", Reason: "must not be negative"}
	case in.SalePrice.IsNegative():
		return &model.ValidationError{Field: "salePrice", Reason: "must not be negative"}
	case in.PurchaseDate.IsZero():
		return &model.ValidationError{Field: "purchaseDate", Reason: "required"}
	case in.SaleDate.IsZero():
		return &model.ValidationError{Field: "saleDate", Reason: "required"}
	case !in.InvestmentType.Valid():
		return &model.ValidationError{Field: "investmentType", Reason: "unknown type " + string(in.InvestmentType)}
	}
	return nil
}

// CalculationResult is the tax outcome of one disposal.
type CalculationResult struct {
	CapitalGain       decimal.Decimal   `json:"capitalGain"`
	TaxableGain       decimal.Decimal   `json:"taxableGain"`
	TaxCategory       model.TaxCategory `json:"taxCategory"`
	TaxRate           decimal.Decimal   `json:"taxRate"`
	TaxLiability      decimal.Decimal   `json:"taxLiability"`
	IndexationBenefit decimal.Decimal   `json:"indexationBenefit"`
	NetGain           decimal.Decimal   `json:"netGain"`
	HoldingPeriod     int               `json:"holdingPeriod"`
}

// Calculate prices the capital-gains tax on selling Quantity units.
func Calculate(in CalculationInput) (CalculationResult, error) {
	if err := in.Validate(); err != nil {
		return CalculationResult{}, err
	}
	indexation := true
	if in.Indexation != nil {
		indexation = *in.Indexation
	}
	r := compute(disposal{
		purchaseValue: in.PurchasePrice.Mul(in.Quantity),
		saleValue:     in.SalePrice.Mul(in.Quantity),
		purchaseDate:  in.PurchaseDate,
		saleDate:      in.SaleDate,
		typ:           in.InvestmentType,
		indexation:    indexation,
	})
	return CalculationResult{
		CapitalGain:       r.capitalGain,
		TaxableGain:       r.taxableGain,
		TaxCategory:       r.category,
		TaxRate:           r.rate,
		TaxLiability:      r.liability,
		IndexationBenefit: r.indexationBenefit,
		NetGain:           r.capitalGain.Sub(r.liability),
		HoldingPeriod:     r.holdingPeriod,
	}, nil
}
