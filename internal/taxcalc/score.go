package taxcalc

import (
	"fmt"
	"math"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// Score weights; they sum to 1 so the score stays within 0..100.
const (
	weightLTCGRatio     = 0.4
	weightLossPotential = 0.3
	weightHoldingPeriod = 0.3
)

// Near-LTCG window: short-term holdings this far along are worth holding on.
const (
	nearLTCGMinDays = 300
	nearLTCGMaxDays = 365
)

var hundred = decimal.NewFromInt(100)

// Score rates a classified portfolio's tax efficiency.
//
// An empty portfolio scores holdingPeriodOptimization = 100 (nothing to
// optimize); the other two factors are 0 whenever their denominators are.
func Score(holdings []model.ClassifiedHolding) model.EfficiencyScore {
	var total, ltcg, losses, gains decimal.Decimal
	nearLTCG := 0
	for _, h := range holdings {
		pnl := h.PnL()
		abs := pnl.Abs()
		total = total.Add(abs)
		if h.TaxCategory == model.LTCG {
			ltcg = ltcg.Add(abs)
		}
		switch {
		case pnl.IsNegative():
			losses = losses.Add(abs)
		case pnl.IsPositive():
			gains = gains.Add(pnl)
		}
		if h.TaxCategory == model.STCG && h.HoldingPeriod > nearLTCGMinDays && h.HoldingPeriod < nearLTCGMaxDays {
			nearLTCG++
		}
	}

	var f model.ScoreFactors
	if total.IsPositive() {
		f.LTCGRatio = ltcg.Div(total).Mul(hundred).InexactFloat64()
	}
	if gains.IsPositive() {
		f.LossHarvestingPotential = decimal.Min(losses.Div(gains), decimal.NewFromInt(1)).Mul(hundred).InexactFloat64()
	}
	if len(holdings) == 0 {
		f.HoldingPeriodOptimization = 100
	} else {
		f.HoldingPeriodOptimization = 100 * float64(nearLTCG) / float64(len(holdings))
	}

	raw := weightLTCGRatio*f.LTCGRatio + weightLossPotential*f.LossHarvestingPotential + weightHoldingPeriod*f.HoldingPeriodOptimization
	score := int(math.Round(raw))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	recs := []string{}
	if f.LTCGRatio < 60 {
		recs = append(recs, "Consider holding stocks for longer periods to benefit from LTCG tax rates")
	}
	if f.LossHarvestingPotential > 20 {
		recs = append(recs, "You have significant tax-loss harvesting opportunities")
	}
	if nearLTCG > 0 {
		recs = append(recs, fmt.Sprintf("%d stocks are close to LTCG qualification - consider holding", nearLTCG))
	}

	return model.EfficiencyScore{
		Score: score,
		Factors: model.ScoreFactors{
			LTCGRatio:                 round2(f.LTCGRatio),
			LossHarvestingPotential:   round2(f.LossHarvestingPotential),
			HoldingPeriodOptimization: round2(f.HoldingPeriodOptimization),
		},
		Recommendations: recs,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
