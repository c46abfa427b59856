// Package report assembles the tax-optimization report for a user's stored
// snapshot and renders it. Only a JSON renderer ships; the document layout is
// left to whatever consumes it.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/taxcalc"

	"github.com/shopspring/decimal"
)

// Insight is one observation about the portfolio.
type Insight struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"` // positive, neutral, negative
	Value       string `json:"value"`
	Category    string `json:"category"` // tax, opportunity, risk
}

// Scenario is a bundle of opportunities the user could act on together.
type Scenario struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	PotentialSavings decimal.Decimal `json:"potentialSavings"`
	RiskLevel        string          `json:"riskLevel"`
	Strategies       []string        `json:"strategies"`
	Timeline         string          `json:"timeline"`
}

// Summary is the report headline.
type Summary struct {
	PotentialSavings   decimal.Decimal `json:"potentialSavings"`
	TaxEfficiencyScore int             `json:"taxEfficiencyScore"`
	OpportunitiesCount int             `json:"opportunitiesCount"`
}

// Request is everything a renderer needs.
type Request struct {
	UserID        string              `json:"userId"`
	Opportunities []model.Opportunity `json:"opportunities"`
	Insights      []Insight           `json:"insights"`
	Scenarios     []Scenario          `json:"scenarios"`
	Summary       Summary             `json:"summary"`
	Language      string              `json:"language"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// Validate checks the fields renderers depend on.
func (r Request) Validate() error {
	if r.UserID == "" {
		return &model.ValidationError{Field: "userId", Reason: "required"}
	}
	if _, ok := texts[r.Language]; !ok {
		return &model.ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q", r.Language)}
	}
	return nil
}

// Renderer turns a Request into a document and its content type.
type Renderer interface {
	Render(ctx context.Context, req Request) ([]byte, string, error)
}

// JSONRenderer renders the request as an indented JSON document.
type JSONRenderer struct{}

type document struct {
	ReportType string `json:"reportType"`
	FiscalYear string `json:"fiscalYear"`
	Request
}

// Render implements Renderer.
func (JSONRenderer) Render(ctx context.Context, req Request) ([]byte, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	out, err := json.MarshalIndent(document{
		ReportType: "tax_optimization",
		FiscalYear: markethours.FiscalYearLabel(req.GeneratedAt),
		Request:    req,
	}, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal report: %w", err)
	}
	return out, "application/json", nil
}

// Filename is the attachment name for a rendered report.
func Filename(req Request, ext string) string {
	return fmt.Sprintf("tax-optimization-report-%s.%s", req.GeneratedAt.In(markethours.IST).Format("2006-01-02"), ext)
}

// Build derives insights, scenarios and the summary from a classified
// snapshot. Unknown languages fall back to English.
func Build(userID string, holdings []model.ClassifiedHolding, opps []model.Opportunity, score model.EfficiencyScore, lang string, now time.Time) Request {
	if _, ok := texts[lang]; !ok {
		lang = "en"
	}
	t := texts[lang]

	req := Request{
		UserID:        userID,
		Opportunities: opps,
		Insights:      []Insight{},
		Scenarios:     []Scenario{},
		Language:      lang,
		GeneratedAt:   now,
		Summary: Summary{
			PotentialSavings:   decimal.Zero,
			TaxEfficiencyScore: score.Score,
			OpportunitiesCount: len(opps),
		},
	}
	if req.Opportunities == nil {
		req.Opportunities = []model.Opportunity{}
	}

	impact := "negative"
	if score.Score >= 60 {
		impact = "positive"
	}
	req.Insights = append(req.Insights, Insight{
		ID:          "efficiency",
		Title:       t.efficiencyTitle,
		Description: fmt.Sprintf(t.efficiencyDesc, score.Score),
		Impact:      impact,
		Value:       fmt.Sprintf("%d%%", score.Score),
		Category:    "tax",
	})

	ltcgGains := decimal.Zero
	nearLTCG := 0
	for _, h := range holdings {
		if h.TaxCategory == model.LTCG && h.CapitalGain.IsPositive() {
			ltcgGains = ltcgGains.Add(h.CapitalGain)
		}
		if h.TaxCategory == model.STCG && h.HoldingPeriod > 300 && h.HoldingPeriod < 365 {
			nearLTCG++
		}
	}
	if ltcgGains.IsPositive() {
		req.Insights = append(req.Insights, Insight{
			ID:          "unrealized_ltcg",
			Title:       t.ltcgTitle,
			Description: fmt.Sprintf(t.ltcgDesc, taxcalc.FormatINR(ltcgGains)),
			Impact:      "neutral",
			Value:       ltcgGains.StringFixed(2),
			Category:    "opportunity",
		})
	}
	if nearLTCG > 0 {
		req.Insights = append(req.Insights, Insight{
			ID:          "holding_period",
			Title:       t.holdTitle,
			Description: fmt.Sprintf(t.holdDesc, nearLTCG),
			Impact:      "positive",
			Value:       fmt.Sprintf("%d", nearLTCG),
			Category:    "opportunity",
		})
	}

	all, high, dated := decimal.Zero, decimal.Zero, decimal.Zero
	for _, o := range opps {
		all = all.Add(o.TaxSavings)
		req.Summary.PotentialSavings = req.Summary.PotentialSavings.Add(o.PotentialSavings)
		if o.Priority == model.PriorityHigh {
			high = high.Add(o.TaxSavings)
		}
		if o.Deadline != nil && o.Deadline.After(now) {
			dated = dated.Add(o.TaxSavings)
		}
	}
	if all.IsPositive() {
		req.Scenarios = append(req.Scenarios, Scenario{
			ID: "aggressive", Name: t.aggressiveName, Description: t.aggressiveDesc,
			PotentialSavings: all, RiskLevel: "medium", Strategies: t.aggressiveSteps, Timeline: t.months3,
		})
	}
	if high.IsPositive() {
		req.Scenarios = append(req.Scenarios, Scenario{
			ID: "conservative", Name: t.conservativeName, Description: t.conservativeDesc,
			PotentialSavings: high, RiskLevel: "low", Strategies: t.conservativeSteps, Timeline: t.months6,
		})
	}
	if dated.IsPositive() {
		req.Scenarios = append(req.Scenarios, Scenario{
			ID: "year_end", Name: t.yearEndName, Description: t.yearEndDesc,
			PotentialSavings: dated, RiskLevel: "high", Strategies: t.yearEndSteps, Timeline: t.month1,
		})
	}
	return req
}
