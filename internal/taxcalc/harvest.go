package taxcalc

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// MatcherConfig holds the loss-harvesting policy constants.
type MatcherConfig struct {
	// AcceptRatio is the minimum gain, as a fraction of the loss, for a match.
	AcceptRatio decimal.Decimal

	STCGOffsetRate   decimal.Decimal
	LTCGOffsetRate   decimal.Decimal
	CarryForwardRate decimal.Decimal

	// Unmatched losses whose savings do not exceed this are dropped.
	MaterialityThreshold decimal.Decimal

	HighPriorityAbove   decimal.Decimal
	MediumPriorityAbove decimal.Decimal

	// DeadlineHorizonDays attaches the fiscal-year-end deadline when fewer
	// days than this remain.
	DeadlineHorizonDays int
}

// DefaultMatcherConfig returns the standard policy.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		AcceptRatio:          decimal.RequireFromString("0.5"),
		STCGOffsetRate:       RateEquitySTCG,
		LTCGOffsetRate:       RateEquityLTCG,
		CarryForwardRate:     RateEquitySTCG,
		MaterialityThreshold: decimal.NewFromInt(5000),
		HighPriorityAbove:    decimal.NewFromInt(15000),
		MediumPriorityAbove:  decimal.NewFromInt(5000),
		DeadlineHorizonDays:  90,
	}
}

// Matcher pairs loss holdings with same-category gain holdings.
//
// Matching is greedy and single pass: losses are visited largest first and
// each takes the largest unconsumed gain that clears AcceptRatio. A gain
// holding offsets at most one loss.
type Matcher struct {
	cfg       MatcherConfig
	purchases []model.Purchase
}

// NewMatcher creates a Matcher with cfg.
func NewMatcher(cfg MatcherConfig) *Matcher {
	return &Matcher{cfg: cfg}
}

// WithPurchases returns a copy of m that flags opportunities whose loss
// symbol was bought within the wash-sale window of the evaluation date.
func (m *Matcher) WithPurchases(p []model.Purchase) *Matcher {
	cp := *m
	cp.purchases = p
	return &cp
}

// FindOpportunities uses the default policy with no purchase history.
func FindOpportunities(holdings []model.ClassifiedHolding, asOf time.Time) []model.Opportunity {
	return NewMatcher(DefaultMatcherConfig()).FindOpportunities(holdings, asOf)
}

type pnlEntry struct {
	h   *model.ClassifiedHolding
	pnl decimal.Decimal
}

// FindOpportunities returns opportunities sorted by potential savings, highest first.
// Callers apply any display cap. asOf drives deadlines and wash-sale flags.
func (m *Matcher) FindOpportunities(holdings []model.ClassifiedHolding, asOf time.Time) []model.Opportunity {
	var losses, gains []pnlEntry
	for i := range holdings {
		h := &holdings[i]
		pnl := h.PnL()
		switch {
		case pnl.IsNegative():
			losses = append(losses, pnlEntry{h: h, pnl: pnl})
		case pnl.IsPositive():
			gains = append(gains, pnlEntry{h: h, pnl: pnl})
		}
	}

	sort.SliceStable(losses, func(i, j int) bool {
		if c := losses[i].pnl.Cmp(losses[j].pnl); c != 0 {
			return c < 0
		}
		return losses[i].h.Symbol < losses[j].h.Symbol
	})
	sort.SliceStable(gains, func(i, j int) bool {
		if c := gains[i].pnl.Cmp(gains[j].pnl); c != 0 {
			return c > 0
		}
		return gains[i].h.Symbol < gains[j].h.Symbol
	})

	deadline := m.deadline(asOf)
	consumed := make([]bool, len(gains))
	opps := make([]model.Opportunity, 0, len(losses))

	for _, l := range losses {
		loss := l.pnl.Abs()
		minGain := loss.Mul(m.cfg.AcceptRatio)

		match := -1
		for gi, g := range gains {
			if consumed[gi] || g.h.TaxCategory != l.h.TaxCategory {
				continue
			}
			if g.pnl.GreaterThanOrEqual(minGain) {
				match = gi
				break
			}
		}

		var opp model.Opportunity
		if match >= 0 {
			consumed[match] = true
			opp = m.matched(l, gains[match])
		} else {
			savings := loss.Mul(m.cfg.CarryForwardRate)
			if !savings.GreaterThan(m.cfg.MaterialityThreshold) {
				continue
			}
			opp = model.Opportunity{
				Type:             model.CarryForward,
				TaxCategory:      l.h.TaxCategory,
				LossStock:        lossStock(l),
				OffsetAmount:     loss,
				PotentialSavings: savings,
				TaxSavings:       savings,
				Recommendation: fmt.Sprintf("Consider booking loss in %s to carry forward for future offset",
					l.h.Symbol),
			}
		}
		opp.Priority = m.priority(opp.TaxSavings)
		if deadline != nil {
			d := *deadline
			opp.Deadline = &d
		}
		if len(m.purchases) > 0 {
			opp.WashSaleRisk = IsWashSale(model.Sale{Symbol: l.h.Symbol, SaleDate: asOf}, m.purchases)
		}
		opps = append(opps, opp)
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].PotentialSavings.GreaterThan(opps[j].PotentialSavings)
	})
	for i := range opps {
		opps[i].ID = "opp_" + strconv.Itoa(i+1)
	}
	return opps
}

func (m *Matcher) matched(l, g pnlEntry) model.Opportunity {
	loss := l.pnl.Abs()
	offset := decimal.Min(loss, g.pnl)

	rate := m.cfg.STCGOffsetRate
	if l.h.TaxCategory == model.LTCG {
		rate = m.cfg.LTCGOffsetRate
	}
	savings := offset.Mul(rate)

	// Units of the gain holding needed to realize offset.
	perUnit := g.h.CurrentPrice.Sub(g.h.AvgPrice)
	qty := offset.Div(perUnit).Ceil()
	if qty.GreaterThan(g.h.Quantity) {
		qty = g.h.Quantity
	}

	return model.Opportunity{
		Type:        model.LossHarvesting,
		TaxCategory: l.h.TaxCategory,
		LossStock:   lossStock(l),
		OffsetStock: &model.OffsetStock{
			Symbol:      g.h.Symbol,
			CurrentGain: g.pnl,
			Quantity:    qty,
			Broker:      g.h.Broker,
		},
		OffsetAmount:     offset,
		PotentialSavings: savings,
		TaxSavings:       savings,
		Recommendation: fmt.Sprintf("Sell %s to book loss of %s and offset against gains from %s",
			l.h.Symbol, FormatINR(loss), g.h.Symbol),
	}
}

func lossStock(l pnlEntry) model.LossStock {
	return model.LossStock{
		Symbol:      l.h.Symbol,
		CurrentLoss: l.pnl,
		Quantity:    l.h.Quantity,
		Broker:      l.h.Broker,
	}
}

func (m *Matcher) priority(savings decimal.Decimal) model.Priority {
	switch {
	case savings.GreaterThan(m.cfg.HighPriorityAbove):
		return model.PriorityHigh
	case savings.GreaterThan(m.cfg.MediumPriorityAbove):
		return model.PriorityMedium
	}
	return model.PriorityLow
}

func (m *Matcher) deadline(asOf time.Time) *time.Time {
	end := markethours.FiscalYearEnd(asOf)
	if markethours.DaysUntil(asOf, end) >= m.cfg.DeadlineHorizonDays {
		return nil
	}
	return &end
}
