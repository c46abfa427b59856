package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentType is the instrument class used for tax thresholds and rates.
type InvestmentType string

const (
	Equity     InvestmentType = "equity"
	MutualFund InvestmentType = "mutual_fund"
	Bond       InvestmentType = "bond"
	ETF        InvestmentType = "etf"
)

// Valid reports whether t is one of the supported instrument classes.
func (t InvestmentType) Valid() bool {
	switch t {
	case Equity, MutualFund, Bond, ETF:
		return true
	}
	return false
}

// AggregateBroker marks a holding consolidated from more than one broker.
const AggregateBroker = "aggregated"

// Holding is a normalized position held at a broker (or merged across brokers).
// PnL is always derived from quantity and prices, never stored.
type Holding struct {
	Symbol         string          `json:"symbol"`
	Exchange       string          `json:"exchange"`
	Quantity       decimal.Decimal `json:"quantity"`
	AvgPrice       decimal.Decimal `json:"avgPrice"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	InvestmentType InvestmentType  `json:"investmentType"`
	PurchaseDate   time.Time       `json:"purchaseDate"`
	Broker         string          `json:"broker"`
	ISIN           string          `json:"isin,omitempty"`

	// FetchedAt is when the broker reported CurrentPrice; latest wins on merge.
	FetchedAt time.Time `json:"fetchedAt"`

	// PurchaseDateEstimated is set when no acquisition date was available
	// and the evaluation date was substituted.
	PurchaseDateEstimated bool `json:"purchaseDateEstimated,omitempty"`

	// Lots keeps the per-broker constituents of a merged holding.
	Lots []Lot `json:"lots,omitempty"`
}

// Lot is one broker's share of a consolidated holding.
type Lot struct {
	Broker       string          `json:"broker"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	PurchaseDate time.Time       `json:"purchaseDate"`
}

// Key returns the aggregation key: "exchange:symbol".
func (h Holding) Key() string {
	return h.Exchange + ":" + h.Symbol
}

// PnL is the unrealized profit or loss: (currentPrice - avgPrice) * quantity.
func (h Holding) PnL() decimal.Decimal {
	return h.CurrentPrice.Sub(h.AvgPrice).Mul(h.Quantity)
}

// CostValue is avgPrice * quantity.
func (h Holding) CostValue() decimal.Decimal {
	return h.AvgPrice.Mul(h.Quantity)
}

// MarketValue is currentPrice * quantity.
func (h Holding) MarketValue() decimal.Decimal {
	return h.CurrentPrice.Mul(h.Quantity)
}

// Validate checks the ingestion invariants. Zero quantity is valid here;
// callers drop such holdings before classification.
func (h Holding) Validate() error {
	switch {
	case h.Symbol == "":
		return &ValidationError{Field: "symbol", Reason: "required"}
	case h.Quantity.IsNegative():
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	case h.AvgPrice.IsNegative():
		return &ValidationError{Field: "avgPrice", Reason: "must not be negative"}
	case h.CurrentPrice.IsNegative():
		return &ValidationError{Field: "currentPrice", Reason: "must not be negative"}
	case !h.InvestmentType.Valid():
		return &ValidationError{Field: "investmentType", Reason: "unknown type " + string(h.InvestmentType)}
	}
	return nil
}
