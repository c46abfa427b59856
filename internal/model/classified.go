package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxCategory is the capital-gains bucket a holding falls into.
type TaxCategory string

const (
	STCG TaxCategory = "STCG"
	LTCG TaxCategory = "LTCG"
)

// ClassifiedHolding is a Holding with its tax treatment as of EvaluationDate.
type ClassifiedHolding struct {
	Holding

	EvaluationDate    time.Time       `json:"evaluationDate"`
	HoldingPeriod     int             `json:"holdingPeriod"` // days
	TaxCategory       TaxCategory     `json:"taxCategory"`
	CapitalGain       decimal.Decimal `json:"capitalGain"`
	TaxableGain       decimal.Decimal `json:"taxableGain"`
	IndexationBenefit decimal.Decimal `json:"indexationBenefit"`
	TaxRate           decimal.Decimal `json:"taxRate"`
	TaxLiability      decimal.Decimal `json:"taxLiability"`
	NetGain           decimal.Decimal `json:"netGain"`

	// ExemptionApplied is set when the equity LTCG exemption was deducted
	// from this holding alone rather than pooled per fiscal year.
	ExemptionApplied bool `json:"exemptionApplied,omitempty"`
}
