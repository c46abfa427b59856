package taxcalc

import (
	"errors"
	"testing"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var evalDate = time.Date(2026, 6, 1, 10, 0, 0, 0, markethours.IST)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holding(typ model.InvestmentType, avg, cur, qty string, daysHeld int) model.Holding {
	return model.Holding{
		Symbol:         "TEST",
		Exchange:       "NSE",
		Quantity:       dec(qty),
		AvgPrice:       dec(avg),
		CurrentPrice:   dec(cur),
		InvestmentType: typ,
		PurchaseDate:   evalDate.Add(-time.Duration(daysHeld) * 24 * time.Hour),
		Broker:         "zerodha",
	}
}

func TestClassify_EquityLTCGWithExemption(t *testing.T) {
	c := Classify(holding(model.Equity, "1000", "2000", "150", 400), evalDate)

	if c.HoldingPeriod != 400 {
		t.Errorf("expected holding period 400, got %d", c.HoldingPeriod)
	}
	if c.TaxCategory != model.LTCG {
		t.Errorf("expected LTCG, got %s", c.TaxCategory)
	}
	if !c.CapitalGain.Equal(dec("150000")) {
		t.Errorf("expected capital gain 150000, got %s", c.CapitalGain)
	}
	if !c.TaxableGain.Equal(dec("50000")) {
		t.Errorf("expected taxable gain 50000, got %s", c.TaxableGain)
	}
	if !c.TaxLiability.Equal(dec("5000")) {
		t.Errorf("expected liability 5000, got %s", c.TaxLiability)
	}
	if !c.ExemptionApplied {
		t.Error("expected per-holding exemption to be flagged")
	}
	if !c.NetGain.Equal(dec("145000")) {
		t.Errorf("expected net gain 145000, got %s", c.NetGain)
	}
}

func TestClassify_CategoryBoundary(t *testing.T) {
	tests := []struct {
		typ  model.InvestmentType
		days int
		want model.TaxCategory
	}{
		{model.Equity, 365, model.STCG},
		{model.Equity, 366, model.LTCG},
		{model.MutualFund, 1095, model.STCG},
		{model.MutualFund, 1096, model.LTCG},
		{model.ETF, 400, model.STCG},
	}
	for _, tt := range tests {
		c := Classify(holding(tt.typ, "100", "110", "1", tt.days), evalDate)
		if c.TaxCategory != tt.want {
			t.Errorf("%s held %d days: expected %s, got %s", tt.typ, tt.days, tt.want, c.TaxCategory)
		}
	}
}

func TestClassify_PartialDayRoundsUp(t *testing.T) {
	h := holding(model.Equity, "100", "110", "1", 365)
	h.PurchaseDate = h.PurchaseDate.Add(-time.Hour)
	c := Classify(h, evalDate)
	if c.HoldingPeriod != 366 || c.TaxCategory != model.LTCG {
		t.Errorf("expected 366 days LTCG, got %d days %s", c.HoldingPeriod, c.TaxCategory)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	h := holding(model.Bond, "1000", "1300", "100", 1500)
	a := Classify(h, evalDate)
	b := Classify(h, evalDate)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("classify not idempotent (-first +second):\n%s", diff)
	}
}

func TestClassify_NonEquityIndexation(t *testing.T) {
	h := model.Holding{
		Symbol:         "GSEC",
		Exchange:       "NSE",
		Quantity:       dec("100"),
		AvgPrice:       dec("1000"),
		CurrentPrice:   dec("1300"),
		InvestmentType: model.Bond,
		PurchaseDate:   time.Date(2020, 6, 1, 0, 0, 0, 0, markethours.IST),
	}
	c := Classify(h, time.Date(2024, 6, 1, 0, 0, 0, 0, markethours.IST))

	if c.HoldingPeriod != 1461 || c.TaxCategory != model.LTCG {
		t.Fatalf("expected 1461 days LTCG, got %d %s", c.HoldingPeriod, c.TaxCategory)
	}
	// 100000 * 363/301 = 120598.01
	if !c.IndexationBenefit.Equal(dec("20598.01")) {
		t.Errorf("expected indexation benefit 20598.01, got %s", c.IndexationBenefit)
	}
	if !c.CapitalGain.Equal(dec("9401.99")) {
		t.Errorf("expected capital gain 9401.99, got %s", c.CapitalGain)
	}
	if !c.TaxRate.Equal(dec("0.20")) {
		t.Errorf("expected rate 0.20, got %s", c.TaxRate)
	}
	if !c.TaxLiability.Equal(dec("1880.40")) {
		t.Errorf("expected liability 1880.40, got %s", c.TaxLiability)
	}
}

func TestClassify_ShortTermRates(t *testing.T) {
	eq := Classify(holding(model.Equity, "100", "200", "10", 30), evalDate)
	if !eq.TaxRate.Equal(dec("0.15")) || !eq.TaxLiability.Equal(dec("150")) {
		t.Errorf("equity STCG: expected 0.15 / 150, got %s / %s", eq.TaxRate, eq.TaxLiability)
	}
	mf := Classify(holding(model.MutualFund, "100", "200", "10", 30), evalDate)
	if !mf.TaxRate.Equal(dec("0.30")) || !mf.TaxLiability.Equal(dec("300")) {
		t.Errorf("non-equity STCG: expected 0.30 / 300, got %s / %s", mf.TaxRate, mf.TaxLiability)
	}
}

func TestClassify_LossHasZeroLiability(t *testing.T) {
	for _, days := range []int{30, 400, 2000} {
		c := Classify(holding(model.MutualFund, "200", "100", "10", days), evalDate)
		if !c.TaxLiability.IsZero() {
			t.Errorf("held %d days: expected zero liability on loss, got %s", days, c.TaxLiability)
		}
	}
}

func TestClassifyAll_DropsZeroQuantity(t *testing.T) {
	hs := []model.Holding{
		holding(model.Equity, "100", "110", "0", 10),
		holding(model.Equity, "100", "110", "5", 10),
	}
	if got := ClassifyAll(hs, evalDate); len(got) != 1 {
		t.Errorf("expected 1 classified holding, got %d", len(got))
	}
}

func TestCII(t *testing.T) {
	tests := []struct {
		year   int
		want   int64
		wantOK bool
	}{
		{2022, 331, true},
		{1995, 100, false},
		{2031, 376, false},
	}
	for _, tt := range tests {
		v, ok := CII(tt.year)
		if !v.Equal(decimal.NewFromInt(tt.want)) || ok != tt.wantOK {
			t.Errorf("CII(%d): expected %d/%v, got %s/%v", tt.year, tt.want, tt.wantOK, v, ok)
		}
	}
}

func TestCalculate_IndexationToggle(t *testing.T) {
	off := false
	in := CalculationInput{
		PurchasePrice:  dec("10"),
		SalePrice:      dec("15"),
		PurchaseDate:   time.Date(2020, 6, 1, 0, 0, 0, 0, markethours.IST),
		SaleDate:       time.Date(2024, 6, 1, 0, 0, 0, 0, markethours.IST),
		Quantity:       dec("1000"),
		InvestmentType: model.MutualFund,
		Indexation:     &off,
	}
	r, err := Calculate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.CapitalGain.Equal(dec("5000")) || !r.IndexationBenefit.IsZero() {
		t.Errorf("expected unindexed gain 5000, got %s (benefit %s)", r.CapitalGain, r.IndexationBenefit)
	}
	if !r.TaxLiability.Equal(dec("1000")) {
		t.Errorf("expected liability 1000, got %s", r.TaxLiability)
	}

	in.Indexation = nil
	r, _ = Calculate(in)
	if !r.IndexationBenefit.IsPositive() {
		t.Errorf("expected indexation by default, got benefit %s", r.IndexationBenefit)
	}
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	_, err := Calculate(CalculationInput{
		PurchasePrice:  dec("10"),
		SalePrice:      dec("15"),
		PurchaseDate:   evalDate,
		SaleDate:       evalDate,
		Quantity:       decimal.Zero,
		InvestmentType: model.Equity,
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Errorf("expected quantity ValidationError, got %v", err)
	}
}
