package broker

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"taxsync-pro/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
)

func mockFactory(t *testing.T) (*Factory, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	f := NewFactory(DefaultCatalog())
	f.HTTPClient = &http.Client{Transport: mt}
	return f, mt
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	if got := len(c.Names()); got != 6 {
		t.Fatalf("expected 6 brokers, got %d", got)
	}
	if c.Names()[0] != "angelone" {
		t.Errorf("expected sorted names, got %v", c.Names())
	}
	if _, err := c.Lookup("kotak"); err == nil {
		t.Error("expected error for unknown broker")
	}

	live := true
	rpm := 60
	over := c.Apply(map[string]Override{
		"iifl":  {IsLive: &live, RequestsPerMinute: &rpm},
		"kotak": {IsLive: &live},
	})
	if !over["iifl"].IsLive || over["iifl"].RequestsPerMinute != 60 {
		t.Errorf("override not applied: %+v", over["iifl"])
	}
	if c["iifl"].IsLive {
		t.Error("Apply must not modify the receiver")
	}
	if _, ok := over["kotak"]; ok {
		t.Error("unknown broker override should be ignored")
	}
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(Catalog{"x": {Name: "x", RequestsPerMinute: 3}})
	for i := 0; i < 3; i++ {
		if !rl.Allow("x") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("x") {
		t.Error("4th request within the minute should be limited")
	}
	if !rl.Allow("y") {
		t.Error("brokers must not share a bucket")
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(Catalog{"x": {Name: "x", RequestsPerMinute: 1}})
	var waited []string
	rl.OnWait = func(b string, _ time.Duration) { waited = append(waited, b) }

	if err := rl.Wait(context.Background(), "x"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "x"); err == nil {
		t.Error("expected second wait to fail on deadline")
	}
	if len(waited) != 2 {
		t.Errorf("expected OnWait twice, got %d", len(waited))
	}
}

func TestFactory_NewSource(t *testing.T) {
	f, _ := mockFactory(t)
	cases := []struct {
		broker string
		creds  model.Credentials
		want   string
	}{
		{"iifl", model.Credentials{}, "*broker.Simulated"},
		{"zerodha", model.Credentials{APIKey: "k"}, "*broker.Live"},
		{"angelone", model.Credentials{APIKey: "k"}, "*broker.Live"},
		{"angelone", model.Credentials{APIKey: "k", TOTPSecret: "JBSWY3DPEHPK3PXP"}, "*broker.AngelOne"},
	}
	for _, tc := range cases {
		src, err := f.NewSource(tc.broker, tc.creds)
		if err != nil {
			t.Fatalf("%s: %v", tc.broker, err)
		}
		if got := typeName(src); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.broker, tc.want, got)
		}
	}

	var ub *model.UnsupportedBrokerError
	if _, err := f.NewSource("kotak", model.Credentials{}); !errors.As(err, &ub) {
		t.Errorf("expected UnsupportedBrokerError, got %v", err)
	}
}

func typeName(s Source) string {
	switch s.(type) {
	case *Simulated:
		return "*broker.Simulated"
	case *Live:
		return "*broker.Live"
	case *AngelOne:
		return "*broker.AngelOne"
	}
	return "unknown"
}

func TestSimulated_Deterministic(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	newSim := func(key string) *Simulated {
		s := NewSimulated(DefaultCatalog()["iifl"], model.Credentials{APIKey: key})
		s.now = func() time.Time { return now }
		return s
	}
	ctx := context.Background()

	a, _ := newSim("k1").Holdings(ctx)
	b, _ := newSim("k1").Holdings(ctx)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("holdings differ between runs (-a +b):\n%s", diff)
	}
	c, _ := newSim("k2").Holdings(ctx)
	if cmp.Equal(a, c) {
		t.Error("different credentials should yield different data")
	}

	for _, h := range a {
		if err := h.Validate(); err != nil {
			t.Errorf("%s: %v", h.Symbol, err)
		}
		if h.Quantity.IntPart() < 10 || h.Quantity.IntPart() >= 110 {
			t.Errorf("%s: quantity %s out of range", h.Symbol, h.Quantity)
		}
	}

	txns, _ := newSim("k1").Transactions(ctx, now.AddDate(-2, 0, 0), now)
	if len(txns) != 20 {
		t.Fatalf("expected 20 transactions, got %d", len(txns))
	}
	for i := 1; i < len(txns); i++ {
		if txns[i].Date.After(txns[i-1].Date) {
			t.Fatal("expected newest first")
		}
	}
}

func TestSimulated_TokenAuth(t *testing.T) {
	cfg := DefaultCatalog()["groww"]
	cfg.IsLive = false
	if err := NewSimulated(cfg, model.Credentials{}).Authenticate(context.Background()); err == nil {
		t.Error("expected token broker to require an access token")
	}
}

func TestLive_Holdings(t *testing.T) {
	f, mt := mockFactory(t)
	mt.RegisterResponder(http.MethodGet, "https://api.kite.trade/portfolio/holdings",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer tok" {
				return httpmock.NewStringResponse(http.StatusForbidden, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"data":[{"tradingsymbol":"SBIN","exchange":"NSE","quantity":3,"average_price":500,"last_price":550}]}`), nil
		})

	src, err := f.NewSource("zerodha", model.Credentials{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	hs, err := src.Holdings(context.Background())
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(hs) != 1 || hs[0].Symbol != "SBIN" || hs[0].Broker != "zerodha" {
		t.Errorf("unexpected holdings %+v", hs)
	}
}

func TestLive_UpstreamError(t *testing.T) {
	f, mt := mockFactory(t)
	mt.RegisterResponder(http.MethodGet, "https://api.upstox.com/v2/portfolio/holdings",
		httpmock.NewStringResponder(http.StatusBadGateway, `oops`))

	src, _ := f.NewSource("upstox", model.Credentials{AccessToken: "tok"})
	_, err := src.Holdings(context.Background())
	var ue *model.UpstreamFetchError
	if !errors.As(err, &ue) || ue.Op != "holdings" || ue.Broker != "upstox" {
		t.Fatalf("expected UpstreamFetchError on holdings, got %v", err)
	}
}

func TestLive_OAuthExchangesToken(t *testing.T) {
	f, mt := mockFactory(t)
	mt.RegisterResponder(http.MethodPost, "https://api.kite.trade/session/token",
		httpmock.NewStringResponder(http.StatusOK, `{"data":{"access_token":"fresh"}}`))

	src, _ := f.NewSource("zerodha", model.Credentials{APIKey: "k", AccessToken: "request", APISecret: "s"})
	if err := src.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got := src.Credentials().AccessToken; got != "fresh" {
		t.Errorf("expected exchanged token, got %q", got)
	}
}

func TestLive_Transactions(t *testing.T) {
	f, mt := mockFactory(t)
	mt.RegisterResponder(http.MethodGet, "https://groww.in/v1/api/orders?from=2025-01-01&to=2025-12-31",
		httpmock.NewStringResponder(http.StatusOK,
			`{"data":[{"id":"1","symbol":"TCS","transactionType":"sell","quantity":2,"price":3000,"date":"2025-03-01T10:00:00Z"}]}`))

	src, _ := f.NewSource("groww", model.Credentials{AccessToken: "tok"})
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txns, err := src.Transactions(context.Background(), from, from.AddDate(0, 0, 364))
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 1 || txns[0].Type != model.Sell || txns[0].Broker != "groww" {
		t.Errorf("unexpected transactions %+v", txns)
	}
}

func TestLive_HealthCheck(t *testing.T) {
	f, mt := mockFactory(t)
	mt.RegisterResponder(http.MethodGet, "https://openapi.5paisa.com/user/profile",
		httpmock.NewStringResponder(http.StatusOK, `{}`))
	mt.RegisterResponder(http.MethodGet, "https://api.upstox.com/v2/user/profile",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ``))

	ok, _ := f.NewSource("fivepaisa", model.Credentials{AccessToken: "tok"})
	if h := ok.HealthCheck(context.Background()); h.Status != Healthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	down, _ := f.NewSource("upstox", model.Credentials{AccessToken: "tok"})
	h := down.HealthCheck(context.Background())
	if h.Status != Down || len(h.Errors) != 1 {
		t.Errorf("expected down with one error, got %+v", h)
	}
}

func TestAngelOne_LoginAndHoldings(t *testing.T) {
	f, mt := mockFactory(t)
	base := "https://apiconnect.angelbroking.com"
	mt.RegisterResponder(http.MethodPost, base+"/rest/auth/angelbroking/user/v1/loginByPassword",
		httpmock.NewStringResponder(http.StatusOK,
			`{"status":true,"message":"SUCCESS","data":{"jwtToken":"jwt","refreshToken":"r","feedToken":"f"}}`))
	mt.RegisterResponder(http.MethodGet, base+"/rest/secure/angelbroking/portfolio/v1/getHolding",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer jwt" {
				return httpmock.NewStringResponse(http.StatusForbidden, `{"error_type":"TokenException","message":"bad token"}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"status":true,"data":[{"symboltoken":"3045","exchange":"NSE","quantity":"2","avgprice":"600","ltp":"590"}]}`), nil
		})

	src, err := f.NewSource("angelone", model.Credentials{APIKey: "k", ClientCode: "C1", PIN: "1234", TOTPSecret: "JBSWY3DPEHPK3PXP"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	hs, err := src.Holdings(context.Background())
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if len(hs) != 1 || hs[0].Symbol != "3045" || hs[0].Broker != "angelone" {
		t.Errorf("unexpected holdings %+v", hs)
	}
	if src.Credentials().AccessToken != "jwt" {
		t.Errorf("expected session token in credentials, got %q", src.Credentials().AccessToken)
	}
	if n := mt.GetTotalCallCount(); n != 2 {
		t.Errorf("expected login + holdings calls, got %d", n)
	}
}
