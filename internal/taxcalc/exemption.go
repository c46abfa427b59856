package taxcalc

import (
	"fmt"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// ExemptionReport is the pooled view of the equity LTCG exemption for one
// fiscal year, as opposed to the per-holding deduction Classify applies.
type ExemptionReport struct {
	FiscalYear         string          `json:"fiscalYear"`
	LTCGGains          decimal.Decimal `json:"ltcgGains"`
	ExemptionUsed      decimal.Decimal `json:"exemptionUsed"`
	ExemptionRemaining decimal.Decimal `json:"exemptionRemaining"`
	ExcessGain         decimal.Decimal `json:"excessGain"`
	TaxOnExcess        decimal.Decimal `json:"taxOnExcess"`
	Recommendation     string          `json:"recommendation"`
}

// LTCGExemption splits ltcgGains into the exempt and taxable portions.
// Negative totals count as zero.
func LTCGExemption(ltcgGains decimal.Decimal, fiscalYear string) ExemptionReport {
	gains := decimal.Max(decimal.Zero, ltcgGains)
	used := decimal.Min(gains, EquityLTCGExemption)
	excess := gains.Sub(used)

	r := ExemptionReport{
		FiscalYear:         fiscalYear,
		LTCGGains:          gains,
		ExemptionUsed:      used,
		ExemptionRemaining: EquityLTCGExemption.Sub(used),
		ExcessGain:         excess,
		TaxOnExcess:        excess.Mul(RateEquityLTCG).Round(2),
	}
	switch {
	case r.ExemptionRemaining.IsPositive():
		r.Recommendation = fmt.Sprintf("You have %s LTCG exemption remaining for FY %s. Consider booking more LTCG gains to utilize this exemption.",
			FormatINR(r.ExemptionRemaining), fiscalYear)
	case excess.IsPositive():
		r.Recommendation = fmt.Sprintf("You have excess LTCG of %s that will be taxed at 10%%. Consider spreading gains across financial years.",
			FormatINR(excess))
	}
	return r
}

// PooledLTCGExemption sums unrealized equity LTCG gains across holdings and
// reports exemption usage for the fiscal year containing asOf.
func PooledLTCGExemption(holdings []model.ClassifiedHolding, asOf time.Time) ExemptionReport {
	total := decimal.Zero
	for _, h := range holdings {
		if h.TaxCategory == model.LTCG && h.InvestmentType == model.Equity && h.CapitalGain.IsPositive() {
			total = total.Add(h.CapitalGain)
		}
	}
	return LTCGExemption(total, markethours.FiscalYearLabel(asOf))
}
