// Package taxcalc implements Indian capital-gains classification, loss
// harvesting, wash-sale detection and portfolio tax-efficiency scoring.
//
// Every function here is pure: no I/O, no shared state, identical output for
// identical input. Inputs are assumed validated at ingestion.
package taxcalc

import (
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// Holding-period thresholds in days. Strictly greater means long term.
const (
	EquityLTCGThresholdDays = 365
	OtherLTCGThresholdDays  = 1095
)

var (
	// EquityLTCGExemption is the per-fiscal-year exempt equity LTCG (₹1 lakh).
	EquityLTCGExemption = decimal.NewFromInt(100000)

	RateEquityLTCG = decimal.RequireFromString("0.10")
	RateOtherLTCG  = decimal.RequireFromString("0.20")
	RateEquitySTCG = decimal.RequireFromString("0.15")
	RateOtherSTCG  = decimal.RequireFromString("0.30")
)

// HoldingPeriod returns ceil(|to - from|) in whole days.
func HoldingPeriod(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		d = -d
	}
	const day = 24 * time.Hour
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}

// Category returns LTCG if days exceeds the threshold for typ, else STCG.
func Category(days int, typ model.InvestmentType) model.TaxCategory {
	threshold := OtherLTCGThresholdDays
	if typ == model.Equity {
		threshold = EquityLTCGThresholdDays
	}
	if days > threshold {
		return model.LTCG
	}
	return model.STCG
}

// Classify computes the tax treatment of h if sold at its current price on evalDate.
// The equity LTCG exemption is deducted per holding; see LTCGExemption for
// the pooled fiscal-year view.
func Classify(h model.Holding, evalDate time.Time) model.ClassifiedHolding {
	r := compute(disposal{
		purchaseValue: h.CostValue(),
		saleValue:     h.MarketValue(),
		purchaseDate:  h.PurchaseDate,
		saleDate:      evalDate,
		typ:           h.InvestmentType,
		indexation:    true,
	})
	return model.ClassifiedHolding{
		Holding:           h,
		EvaluationDate:    evalDate,
		HoldingPeriod:     r.holdingPeriod,
		TaxCategory:       r.category,
		CapitalGain:       r.capitalGain,
		TaxableGain:       r.taxableGain,
		IndexationBenefit: r.indexationBenefit,
		TaxRate:           r.rate,
		TaxLiability:      r.liability,
		NetGain:           r.capitalGain.Sub(r.liability),
		ExemptionApplied:  r.exemptionApplied,
	}
}

// ClassifyAll classifies every holding with positive quantity.
func ClassifyAll(holdings []model.Holding, evalDate time.Time) []model.ClassifiedHolding {
	out := make([]model.ClassifiedHolding, 0, len(holdings))
	for _, h := range holdings {
		if !h.Quantity.IsPositive() {
			continue
		}
		out = append(out, Classify(h, evalDate))
	}
	return out
}

type disposal struct {
	purchaseValue decimal.Decimal
	saleValue     decimal.Decimal
	purchaseDate  time.Time
	saleDate      time.Time
	typ           model.InvestmentType
	indexation    bool
}

type taxResult struct {
	holdingPeriod     int
	category          model.TaxCategory
	capitalGain       decimal.Decimal
	taxableGain       decimal.Decimal
	indexationBenefit decimal.Decimal
	rate              decimal.Decimal
	liability         decimal.Decimal
	exemptionApplied  bool
}

func compute(d disposal) taxResult {
	r := taxResult{
		holdingPeriod:     HoldingPeriod(d.purchaseDate, d.saleDate),
		capitalGain:       d.saleValue.Sub(d.purchaseValue),
		indexationBenefit: decimal.Zero,
	}
	r.category = Category(r.holdingPeriod, d.typ)
	equity := d.typ == model.Equity

	switch {
	case r.category == model.LTCG && equity:
		r.rate = RateEquityLTCG
		r.taxableGain = decimal.Max(decimal.Zero, r.capitalGain.Sub(EquityLTCGExemption))
		r.exemptionApplied = r.capitalGain.IsPositive()
	case r.category == model.LTCG:
		if d.indexation {
			r.indexationBenefit = indexationBenefit(d.purchaseValue, d.purchaseDate, d.saleDate)
			r.capitalGain = d.saleValue.Sub(d.purchaseValue.Add(r.indexationBenefit))
		}
		r.rate = RateOtherLTCG
		r.taxableGain = decimal.Max(decimal.Zero, r.capitalGain)
	case equity:
		r.rate = RateEquitySTCG
		r.taxableGain = decimal.Max(decimal.Zero, r.capitalGain)
	default:
		r.rate = RateOtherSTCG
		r.taxableGain = decimal.Max(decimal.Zero, r.capitalGain)
	}
	r.liability = r.taxableGain.Mul(r.rate).Round(2)
	return r
}

// indexationBenefit is purchaseValue*(CII[sale]/CII[purchase]) - purchaseValue,
// floored at zero so a clamped table never inflates the gain.
func indexationBenefit(purchaseValue decimal.Decimal, purchaseDate, saleDate time.Time) decimal.Decimal {
	purchaseCII, _ := CII(purchaseDate.In(markethours.IST).Year())
	saleCII, _ := CII(saleDate.In(markethours.IST).Year())
	indexed := purchaseValue.Mul(saleCII).Div(purchaseCII).Round(2)
	return decimal.Max(decimal.Zero, indexed.Sub(purchaseValue))
}
