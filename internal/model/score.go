package model

// ScoreFactors are the three components of the efficiency score, each 0..100.
type ScoreFactors struct {
	LTCGRatio                 float64 `json:"ltcgRatio"`
	LossHarvestingPotential   float64 `json:"lossHarvestingPotential"`
	HoldingPeriodOptimization float64 `json:"holdingPeriodOptimization"`
}

// EfficiencyScore is a derived 0..100 rating of portfolio tax efficiency.
// Cached for display only; always recomputable from classified holdings.
type EfficiencyScore struct {
	Score           int          `json:"score"`
	Factors         ScoreFactors `json:"factors"`
	Recommendations []string     `json:"recommendations"`
}
