package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"taxsync-pro/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func TestIntegrations(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	in, err := s.GetIntegration(ctx, "u1", "zerodha")
	if err != nil || in != nil {
		t.Fatalf("expected nil, nil for missing row, got %v, %v", in, err)
	}

	rows := []model.Integration{
		{UserID: "u1", Broker: "zerodha", Credentials: model.Credentials{APIKey: "k", AccessToken: "a"}, IsConnected: true},
		{UserID: "u1", Broker: "angelone", Credentials: model.Credentials{ClientCode: "C1", PIN: "1", TOTPSecret: "S"}, IsConnected: true},
		{UserID: "u2", Broker: "groww", IsConnected: false},
	}
	for _, r := range rows {
		if err := s.UpsertIntegration(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.GetIntegration(ctx, "u1", "angelone")
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Credentials.TOTPSecret != "S" || got.SyncStatus != model.SyncPending || !got.IsConnected {
		t.Errorf("unexpected integration %+v", got)
	}

	list, _ := s.ListIntegrations(ctx, "u1")
	if len(list) != 2 || list[0].Broker != "angelone" {
		t.Errorf("expected 2 rows ordered by broker, got %+v", list)
	}

	users, _ := s.ConnectedUsers(ctx)
	if diff := cmp.Diff([]string{"u1"}, users); diff != "" {
		t.Errorf("connected users (-want +got):\n%s", diff)
	}

	if err := s.RecordSync(ctx, "u1", "zerodha", model.SyncError, "timeout", now); err != nil {
		t.Fatalf("record sync: %v", err)
	}
	got, _ = s.GetIntegration(ctx, "u1", "zerodha")
	if got.SyncStatus != model.SyncError || got.SyncError != "timeout" || !got.LastSync.Equal(now) {
		t.Errorf("sync not recorded: %+v", got)
	}

	// Reconnecting keeps last_sync but replaces credentials.
	rows[0].Credentials.AccessToken = "b"
	if err := s.UpsertIntegration(ctx, rows[0]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ = s.GetIntegration(ctx, "u1", "zerodha")
	if got.Credentials.AccessToken != "b" || !got.LastSync.Equal(now) {
		t.Errorf("unexpected after reconnect: %+v", got)
	}
}

func TestPortfolioRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	bought := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	h := model.ClassifiedHolding{
		Holding: model.Holding{
			Symbol: "TCS", Exchange: "NSE", Quantity: d("40"), AvgPrice: d("3300"), CurrentPrice: d("3500"),
			InvestmentType: model.Equity, PurchaseDate: bought, Broker: model.AggregateBroker, FetchedAt: now,
			Lots: []model.Lot{
				{Broker: "zerodha", Quantity: d("10"), AvgPrice: d("3000"), PurchaseDate: bought},
				{Broker: "groww", Quantity: d("30"), AvgPrice: d("3400"), PurchaseDate: bought.AddDate(0, 3, 0)},
			},
		},
		EvaluationDate: now, HoldingPeriod: 817, TaxCategory: model.LTCG,
		CapitalGain: d("8000"), TaxableGain: d("0"), IndexationBenefit: d("0"),
		TaxRate: d("0.1"), TaxLiability: d("0"), NetGain: d("8000"), ExemptionApplied: true,
	}
	other := h
	other.Symbol, other.Lots, other.Broker = "INFY", nil, "zerodha"

	if err := s.ReplaceSnapshot(ctx, "u1", []model.ClassifiedHolding{other, h}, nil, now); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.ReadPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(got))
	}
	if diff := cmp.Diff(h, got[1]); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// A second replace drops the old snapshot.
	if err := s.ReplaceSnapshot(ctx, "u1", []model.ClassifiedHolding{h}, nil, now); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.ReadPortfolio(ctx, "u1")
	if len(got) != 1 || got[0].Symbol != "TCS" {
		t.Errorf("expected only TCS after replace, got %d rows", len(got))
	}

	if other, _ := s.ReadPortfolio(ctx, "u2"); len(other) != 0 {
		t.Errorf("expected no rows for u2, got %d", len(other))
	}
}

func TestOpportunitiesRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	deadline := time.Date(2027, 3, 31, 18, 29, 59, 0, time.UTC)
	opps := []model.Opportunity{
		{
			ID: "opp_1", Type: model.LossHarvesting, TaxCategory: model.STCG,
			LossStock:        model.LossStock{Symbol: "A", CurrentLoss: d("-10000"), Quantity: d("100"), Broker: "zerodha"},
			OffsetStock:      &model.OffsetStock{Symbol: "B", CurrentGain: d("20000"), Quantity: d("84"), Broker: "groww"},
			OffsetAmount:     d("10000"),
			PotentialSavings: d("1500"), TaxSavings: d("1500"),
			Priority: model.PriorityLow, Recommendation: "sell A", Deadline: &deadline, WashSaleRisk: true,
		},
		{
			ID: "opp_2", Type: model.CarryForward, TaxCategory: model.LTCG,
			LossStock:        model.LossStock{Symbol: "C", CurrentLoss: d("-50000"), Quantity: d("5"), Broker: "upstox"},
			OffsetAmount:     d("50000"),
			PotentialSavings: d("7500"), TaxSavings: d("7500"),
			Priority: model.PriorityMedium, Recommendation: "carry C",
		},
	}
	if err := s.ReplaceSnapshot(ctx, "u1", nil, opps, now); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.ReadOpportunities(ctx, "u1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(opps, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceSnapshot_RollsBackOnFailure(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	old := []model.ClassifiedHolding{{
		Holding:     model.Holding{Symbol: "TCS", Exchange: "NSE", Broker: "zerodha", Quantity: d("10"), AvgPrice: d("3000"), CurrentPrice: d("3500")},
		TaxCategory: model.LTCG, EvaluationDate: now,
	}}
	oldOpps := []model.Opportunity{{ID: "opp_1", Type: model.CarryForward, TaxCategory: model.STCG,
		LossStock: model.LossStock{Symbol: "TCS"}, Priority: model.PriorityLow}}
	if err := s.ReplaceSnapshot(ctx, "u1", old, oldOpps, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fresh := []model.ClassifiedHolding{old[0], old[0]}
	fresh[1].Symbol = "INFY"
	// Duplicate opportunity IDs violate the primary key after the holdings are written.
	dup := []model.Opportunity{oldOpps[0], oldOpps[0]}
	if err := s.ReplaceSnapshot(ctx, "u1", fresh, dup, now.Add(time.Hour)); err == nil {
		t.Fatal("expected duplicate opportunity error")
	}

	got, err := s.ReadPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("read portfolio: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "TCS" {
		t.Errorf("expected old portfolio of TCS only, got %d rows", len(got))
	}
	opps, err := s.ReadOpportunities(ctx, "u1")
	if err != nil {
		t.Fatalf("read opportunities: %v", err)
	}
	if len(opps) != 1 || opps[0].ID != "opp_1" {
		t.Errorf("expected old opportunity kept, got %+v", opps)
	}
}
