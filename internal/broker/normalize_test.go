package broker

import (
	"errors"
	"testing"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

var fetched = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedRegistry() *Registry {
	r := NewRegistry()
	r.now = func() time.Time { return fetched }
	return r
}

func TestRegistry_NormalizeFieldMaps(t *testing.T) {
	cases := []struct {
		broker   string
		payload  string
		symbol   string
		exchange string
		avg      string
		cur      string
	}{
		{"zerodha", `{"data":[{"tradingsymbol":"INFY","exchange":"BSE","isin":"INE009A01021","quantity":10,"average_price":1500.5,"last_price":1600,"pnl":995}]}`, "INFY", "BSE", "1500.5", "1600"},
		{"upstox", `{"data":[{"instrument_token":"NSE_EQ|INE002A01018","exchange":"NSE","quantity":4,"avg_cost":2400,"ltp":2500.25,"unrealised_pnl":401}]}`, "NSE_EQ|INE002A01018", "NSE", "2400", "2500.25"},
		{"groww", `{"holdings":[{"symbol":"TCS","quantity":2,"avgPrice":3300,"currentPrice":3200}]}`, "TCS", "NSE", "3300", "3200"},
		{"angelone", `{"status":true,"data":[{"symboltoken":"3045","exchange":"NSE","quantity":"7","avgprice":"600.1","ltp":"610"}]}`, "3045", "NSE", "600.1", "610"},
		{"fivepaisa", `{"data":[{"symbol":"HDFC","exchange":"NSE","quantity":1,"avgPrice":1400,"currentPrice":1450}]}`, "HDFC", "NSE", "1400", "1450"},
	}

	r := fixedRegistry()
	for _, tc := range cases {
		t.Run(tc.broker, func(t *testing.T) {
			hs, err := r.Normalize(tc.broker, []byte(tc.payload))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(hs) != 1 {
				t.Fatalf("expected 1 holding, got %d", len(hs))
			}
			h := hs[0]
			if h.Symbol != tc.symbol || h.Exchange != tc.exchange {
				t.Errorf("expected %s/%s, got %s/%s", tc.exchange, tc.symbol, h.Exchange, h.Symbol)
			}
			if !h.AvgPrice.Equal(decimal.RequireFromString(tc.avg)) || !h.CurrentPrice.Equal(decimal.RequireFromString(tc.cur)) {
				t.Errorf("expected prices %s/%s, got %s/%s", tc.avg, tc.cur, h.AvgPrice, h.CurrentPrice)
			}
			if h.Broker != tc.broker {
				t.Errorf("expected broker %s, got %s", tc.broker, h.Broker)
			}
			if h.InvestmentType != model.Equity {
				t.Errorf("expected equity default, got %s", h.InvestmentType)
			}
			if !h.FetchedAt.Equal(fetched) {
				t.Errorf("expected fetchedAt %v, got %v", fetched, h.FetchedAt)
			}
		})
	}
}

func TestRegistry_CanonicalKeepsTypeAndDate(t *testing.T) {
	payload := `{"data":[{"symbol":"GSEC2030","quantity":5,"avgPrice":100,"currentPrice":102,"investmentType":"bond","purchaseDate":"2022-04-01T00:00:00+05:30"}]}`
	hs, err := fixedRegistry().Normalize("iifl", []byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if hs[0].InvestmentType != model.Bond {
		t.Errorf("expected bond, got %s", hs[0].InvestmentType)
	}
	if hs[0].PurchaseDate.IsZero() || hs[0].PurchaseDate.Year() != 2022 {
		t.Errorf("expected 2022 purchase date, got %v", hs[0].PurchaseDate)
	}
}

func TestRegistry_UnknownBroker(t *testing.T) {
	_, err := fixedRegistry().Normalize("robinhood", []byte(`{}`))
	var ub *model.UnsupportedBrokerError
	if !errors.As(err, &ub) || ub.Broker != "robinhood" {
		t.Fatalf("expected UnsupportedBrokerError, got %v", err)
	}
}

func TestRegistry_DropsZeroQuantity(t *testing.T) {
	payload := `{"holdings":[{"symbol":"A","quantity":0,"avgPrice":1,"currentPrice":1},{"symbol":"B","quantity":3,"avgPrice":1,"currentPrice":1}]}`
	hs, err := fixedRegistry().Normalize("groww", []byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(hs) != 1 || hs[0].Symbol != "B" {
		t.Errorf("expected only B, got %+v", hs)
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative quantity": `{"holdings":[{"symbol":"A","quantity":-1,"avgPrice":1,"currentPrice":1}]}`,
		"negative price":    `{"holdings":[{"symbol":"A","quantity":1,"avgPrice":-5,"currentPrice":1}]}`,
		"missing symbol":    `{"holdings":[{"quantity":1,"avgPrice":1,"currentPrice":1}]}`,
		"malformed":         `{"holdings":[`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fixedRegistry().Normalize("groww", []byte(payload))
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRegistry_RegisterCustom(t *testing.T) {
	r := fixedRegistry()
	r.Register("paper", func(raw []byte) ([]model.Holding, error) {
		return []model.Holding{{Symbol: string(raw), Quantity: decimal.NewFromInt(1)}}, nil
	})
	hs, err := r.Normalize("paper", []byte("SBIN"))
	if err != nil || len(hs) != 1 || hs[0].Symbol != "SBIN" || hs[0].Broker != "paper" {
		t.Errorf("unexpected result %+v, %v", hs, err)
	}
}

func TestNormalizeTransactions(t *testing.T) {
	payload := `{"data":[{"id":"t1","symbol":"TCS","transactionType":"buy","quantity":5,"price":3000,"charges":15,"date":"2025-06-01T10:00:00+05:30","orderId":"o1"}]}`
	txns, err := NormalizeTransactions("zerodha", []byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(txns) != 1 || txns[0].Broker != "zerodha" || txns[0].Exchange != "NSE" || txns[0].Type != model.Buy {
		t.Errorf("unexpected transactions %+v", txns)
	}
	if !txns[0].Amount().Equal(decimal.NewFromInt(15000)) {
		t.Errorf("expected amount 15000, got %s", txns[0].Amount())
	}

	_, err = NormalizeTransactions("zerodha", []byte(`{"data":[{"symbol":"TCS","transactionType":"short","quantity":1}]}`))
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for unknown type, got %v", err)
	}
}
