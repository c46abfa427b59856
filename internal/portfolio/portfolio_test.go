package portfolio

import (
	"testing"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func h(sym, broker, qty, avg, cur string, fetched time.Time, bought time.Time) model.Holding {
	return model.Holding{
		Symbol:         sym,
		Exchange:       "NSE",
		Quantity:       d(qty),
		AvgPrice:       d(avg),
		CurrentPrice:   d(cur),
		InvestmentType: model.Equity,
		PurchaseDate:   bought,
		Broker:         broker,
		FetchedAt:      fetched,
	}
}

func TestMerge_WeightedAverage(t *testing.T) {
	in := []model.Holding{
		h("TCS", "zerodha", "10", "3000", "3500", t0, t0.AddDate(-2, 0, 0)),
		h("INFY", "zerodha", "5", "1500", "1400", t0, t0.AddDate(0, -3, 0)),
		h("TCS", "groww", "30", "3400", "3500", t0, t0.AddDate(0, -6, 0)),
	}
	out := Merge(in)

	if len(out) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(out))
	}
	tcs := out[0]
	if tcs.Symbol != "TCS" || !tcs.Quantity.Equal(d("40")) {
		t.Fatalf("expected TCS x40 first, got %s x%s", tcs.Symbol, tcs.Quantity)
	}
	// (10*3000 + 30*3400) / 40 = 3300
	if !tcs.AvgPrice.Equal(d("3300")) {
		t.Errorf("expected avg 3300, got %s", tcs.AvgPrice)
	}
	if !tcs.PnL().Equal(d("8000")) {
		t.Errorf("expected pnl 8000 (sum of 5000 and 3000), got %s", tcs.PnL())
	}
	if tcs.Broker != model.AggregateBroker {
		t.Errorf("expected aggregated broker, got %s", tcs.Broker)
	}
	if !tcs.PurchaseDate.Equal(t0.AddDate(-2, 0, 0)) {
		t.Errorf("expected earliest purchase date, got %v", tcs.PurchaseDate)
	}
	if len(tcs.Lots) != 2 || tcs.Lots[1].Broker != "groww" {
		t.Errorf("expected 2 lots ending with groww, got %+v", tcs.Lots)
	}
	if out[1].Broker != "zerodha" || out[1].Lots != nil {
		t.Errorf("single-broker holding should be untouched, got %+v", out[1])
	}
}

func TestMerge_ConservesQuantity(t *testing.T) {
	in := []model.Holding{
		h("A", "zerodha", "3", "10", "11", t0, t0),
		h("B", "upstox", "7.5", "10", "11", t0, t0),
		h("A", "upstox", "4", "12", "11", t0, t0),
		h("A", "groww", "1", "9", "11", t0, t0),
		h("B", "groww", "2.5", "8", "11", t0, t0),
	}
	before := TotalQuantity(in)
	after := TotalQuantity(Merge(in))
	if len(before) != len(after) {
		t.Fatalf("expected %d keys, got %d", len(before), len(after))
	}
	for k, q := range before {
		if !after[k].Equal(q) {
			t.Errorf("%s: expected quantity %s, got %s", k, q, after[k])
		}
	}
}

func TestMerge_LatestPriceWins(t *testing.T) {
	in := []model.Holding{
		h("HDFC", "zerodha", "1", "100", "150", t0.Add(time.Minute), t0),
		h("HDFC", "upstox", "1", "100", "140", t0, t0),
	}
	if got := Merge(in)[0].CurrentPrice; !got.Equal(d("150")) {
		t.Errorf("expected later-fetched price 150, got %s", got)
	}

	in[1].FetchedAt = in[0].FetchedAt
	if got := Merge(in)[0].CurrentPrice; !got.Equal(d("140")) {
		t.Errorf("expected tie to go to later input 140, got %s", got)
	}
}

func TestMerge_DifferentExchangesStaySeparate(t *testing.T) {
	a := h("SBIN", "zerodha", "1", "100", "110", t0, t0)
	b := h("SBIN", "zerodha", "1", "100", "110", t0, t0)
	b.Exchange = "BSE"
	if out := Merge([]model.Holding{a, b}); len(out) != 2 {
		t.Errorf("expected 2 holdings, got %d", len(out))
	}
}

func TestMerge_Empty(t *testing.T) {
	if out := Merge(nil); len(out) != 0 {
		t.Errorf("expected empty, got %d", len(out))
	}
}

func TestOpenLotDates_FIFO(t *testing.T) {
	day := func(n int) time.Time { return t0.AddDate(0, 0, n) }
	txns := []model.Transaction{
		{Symbol: "RELIANCE", Type: model.Sell, Quantity: d("15"), Date: day(20)},
		{Symbol: "RELIANCE", Type: model.Buy, Quantity: d("10"), Date: day(1)},
		{Symbol: "RELIANCE", Type: model.Buy, Quantity: d("10"), Date: day(10)},
		{Symbol: "TCS", Type: model.Buy, Quantity: d("5"), Date: day(2)},
		{Symbol: "TCS", Type: model.Sell, Quantity: d("5"), Date: day(3)},
	}
	got := OpenLotDates(txns)

	// The first lot is fully sold; the remaining units date from day 10.
	if !got["RELIANCE"].Equal(day(10)) {
		t.Errorf("expected RELIANCE open since day 10, got %v", got["RELIANCE"])
	}
	if _, ok := got["TCS"]; ok {
		t.Errorf("expected TCS fully sold, got %v", got["TCS"])
	}
}

func TestApplyPurchaseDates(t *testing.T) {
	known := h("TCS", "zerodha", "1", "1", "1", t0, t0.AddDate(-1, 0, 0))
	fromTxn := h("INFY", "zerodha", "1", "1", "1", t0, time.Time{})
	unknown := h("HDFC", "zerodha", "1", "1", "1", t0, time.Time{})
	txns := []model.Transaction{{Symbol: "INFY", Type: model.Buy, Quantity: d("1"), Date: t0.AddDate(0, -2, 0)}}

	out := ApplyPurchaseDates([]model.Holding{known, fromTxn, unknown}, txns, t0)

	if !out[0].PurchaseDate.Equal(known.PurchaseDate) || out[0].PurchaseDateEstimated {
		t.Errorf("known date should be kept, got %+v", out[0])
	}
	if !out[1].PurchaseDate.Equal(t0.AddDate(0, -2, 0)) {
		t.Errorf("expected date from transactions, got %v", out[1].PurchaseDate)
	}
	if !out[2].PurchaseDate.Equal(t0) || !out[2].PurchaseDateEstimated {
		t.Errorf("expected estimated fallback date, got %+v", out[2])
	}
}

func TestSummarize(t *testing.T) {
	classified := []model.ClassifiedHolding{
		{Holding: h("A", "z", "10", "100", "150", t0, t0), TaxCategory: model.LTCG, TaxLiability: d("0")},
		{Holding: h("B", "z", "10", "100", "80", t0, t0), TaxCategory: model.STCG, TaxLiability: d("0")},
		{Holding: h("C", "z", "10", "100", "130", t0, t0), TaxCategory: model.STCG, TaxLiability: d("45")},
	}
	opps := []model.Opportunity{{PotentialSavings: d("30")}}

	s := Summarize(classified, opps)
	if !s.TotalValue.Equal(d("3600")) || !s.TotalInvested.Equal(d("3000")) || !s.TotalPnL.Equal(d("600")) {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.ProfitableHoldings != 2 || s.LossHoldings != 1 || s.LTCGHoldings != 1 || s.STCGHoldings != 2 {
		t.Errorf("unexpected counts %+v", s)
	}
	if !s.PotentialTaxSavings.Equal(d("30")) || !s.TotalTaxLiability.Equal(d("45")) || s.Opportunities != 1 {
		t.Errorf("unexpected tax figures %+v", s)
	}
}

func TestSplit_UndoesMerge(t *testing.T) {
	in := []model.Holding{
		h("TCS", "zerodha", "10", "3000", "3500", t0, t0.AddDate(-2, 0, 0)),
		h("TCS", "groww", "30", "3400", "3500", t0, t0.AddDate(0, -6, 0)),
		h("INFY", "upstox", "5", "1500", "1400", t0, t0.AddDate(0, -3, 0)),
	}
	out := Split(Merge(in))

	if len(out) != 3 {
		t.Fatalf("expected 3 per-broker holdings, got %d", len(out))
	}
	for i, want := range in {
		got := out[i]
		if got.Broker != want.Broker || !got.Quantity.Equal(want.Quantity) || !got.AvgPrice.Equal(want.AvgPrice) ||
			!got.PurchaseDate.Equal(want.PurchaseDate) || got.Lots != nil {
			t.Errorf("lot %d: expected %s %s@%s, got %s %s@%s", i, want.Broker, want.Quantity, want.AvgPrice,
				got.Broker, got.Quantity, got.AvgPrice)
		}
	}
}

func TestFromBrokers(t *testing.T) {
	in := []model.Holding{
		h("TCS", "zerodha", "10", "3000", "3500", t0, t0),
		h("TCS", "groww", "30", "3400", "3500", t0, t0),
	}
	out := FromBrokers(in, map[string]bool{"groww": true})
	if len(out) != 1 || out[0].Broker != "groww" {
		t.Errorf("expected only groww, got %+v", out)
	}
	if out := FromBrokers(in, nil); len(out) != 0 {
		t.Errorf("expected none for empty set, got %d", len(out))
	}
}
