package portfolio

import (
	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// Summary is the headline view of a classified portfolio.
type Summary struct {
	TotalValue          decimal.Decimal `json:"totalValue"`
	TotalInvested       decimal.Decimal `json:"totalInvested"`
	TotalPnL            decimal.Decimal `json:"totalPnL"`
	TotalTaxLiability   decimal.Decimal `json:"totalTaxLiability"`
	PotentialTaxSavings decimal.Decimal `json:"potentialTaxSavings"`

	TotalHoldings      int `json:"totalHoldings"`
	ProfitableHoldings int `json:"profitableHoldings"`
	LossHoldings       int `json:"lossHoldings"`
	LTCGHoldings       int `json:"ltcgHoldings"`
	STCGHoldings       int `json:"stcgHoldings"`
	Opportunities      int `json:"taxOpportunities"`
}

// Summarize totals values, P&L and tax figures.
func Summarize(holdings []model.ClassifiedHolding, opps []model.Opportunity) Summary {
	s := Summary{
		TotalValue:          decimal.Zero,
		TotalInvested:       decimal.Zero,
		TotalPnL:            decimal.Zero,
		TotalTaxLiability:   decimal.Zero,
		PotentialTaxSavings: decimal.Zero,
		TotalHoldings:       len(holdings),
		Opportunities:       len(opps),
	}
	for _, h := range holdings {
		pnl := h.PnL()
		s.TotalValue = s.TotalValue.Add(h.MarketValue())
		s.TotalInvested = s.TotalInvested.Add(h.CostValue())
		s.TotalPnL = s.TotalPnL.Add(pnl)
		s.TotalTaxLiability = s.TotalTaxLiability.Add(h.TaxLiability)
		switch {
		case pnl.IsPositive():
			s.ProfitableHoldings++
		case pnl.IsNegative():
			s.LossHoldings++
		}
		if h.TaxCategory == model.LTCG {
			s.LTCGHoldings++
		} else {
			s.STCGHoldings++
		}
	}
	for _, o := range opps {
		s.PotentialTaxSavings = s.PotentialTaxSavings.Add(o.PotentialSavings)
	}
	return s
}
