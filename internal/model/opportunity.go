package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityType distinguishes matched offsets from standalone losses.
type OpportunityType string

const (
	LossHarvesting OpportunityType = "loss_harvesting"
	CarryForward   OpportunityType = "carry_forward"
)

// Priority ranks an opportunity by its tax savings.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// LossStock is the holding to sell at a loss.
type LossStock struct {
	Symbol      string          `json:"symbol"`
	CurrentLoss decimal.Decimal `json:"currentLoss"` // negative
	Quantity    decimal.Decimal `json:"quantity"`
	Broker      string          `json:"broker"`
}

// OffsetStock is the gain holding the loss is booked against.
type OffsetStock struct {
	Symbol      string          `json:"symbol"`
	CurrentGain decimal.Decimal `json:"currentGain"` // positive
	Quantity    decimal.Decimal `json:"quantity"`
	Broker      string          `json:"broker"`
}

// Opportunity is a tax-loss-harvesting suggestion.
// TaxSavings never exceeds min(|loss|, gain), or |loss| when OffsetStock is nil.
type Opportunity struct {
	ID               string          `json:"id"`
	Type             OpportunityType `json:"type"`
	TaxCategory      TaxCategory     `json:"taxCategory"`
	LossStock        LossStock       `json:"lossStock"`
	OffsetStock      *OffsetStock    `json:"offsetStock,omitempty"`
	OffsetAmount     decimal.Decimal `json:"offsetAmount"`
	PotentialSavings decimal.Decimal `json:"potentialSavings"`
	TaxSavings       decimal.Decimal `json:"taxSavings"`
	Priority         Priority        `json:"priority"`
	Recommendation   string          `json:"recommendation"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	WashSaleRisk     bool            `json:"washSaleRisk,omitempty"`
}
