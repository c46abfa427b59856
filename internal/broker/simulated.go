package broker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

var simSymbols = []string{"RELIANCE", "TCS", "HDFC", "INFY", "ICICIBANK"}

// Simulated serves generated data for brokers that are not live yet. Output
// is deterministic for a given broker, API key and clock.
type Simulated struct {
	cfg   Config
	creds model.Credentials
	seed  int64
	now   func() time.Time
}

func NewSimulated(cfg Config, creds model.Credentials) *Simulated {
	h := fnv.New64a()
	h.Write([]byte(cfg.Name))
	h.Write([]byte{0})
	h.Write([]byte(creds.APIKey))
	return &Simulated{cfg: cfg, creds: creds, seed: int64(h.Sum64()), now: time.Now}
}

func (s *Simulated) Broker() string                 { return s.cfg.Name }
func (s *Simulated) Credentials() model.Credentials { return s.creds }

func (s *Simulated) Authenticate(ctx context.Context) error {
	if s.cfg.AuthType == AuthToken && s.creds.AccessToken == "" {
		return &model.UpstreamFetchError{Broker: s.cfg.Name, Op: "authenticate", Err: errors.New("access token required")}
	}
	return nil
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// Holdings returns one position per simulated symbol: avg price in
// [1000, 3000), current price within ±100 of it, quantity in [10, 110).
func (s *Simulated) Holdings(ctx context.Context) ([]model.Holding, error) {
	r := rand.New(rand.NewSource(s.seed))
	now := s.now()
	out := make([]model.Holding, 0, len(simSymbols))
	for _, sym := range simSymbols {
		avg := 1000 + r.Float64()*2000
		cur := avg + (r.Float64()-0.5)*200
		qty := r.Intn(100) + 10
		out = append(out, model.Holding{
			Symbol:         sym,
			Exchange:       "NSE",
			Quantity:       decimal.NewFromInt(int64(qty)),
			AvgPrice:       money(avg),
			CurrentPrice:   money(cur),
			InvestmentType: model.Equity,
			Broker:         s.cfg.Name,
			FetchedAt:      now,
		})
	}
	return out, nil
}

// Transactions returns 20 trades spread over the year before now, newest
// first, with 0.1% charges. Each simulated symbol opens with a buy so the
// FIFO replay always finds an acquisition date.
func (s *Simulated) Transactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	r := rand.New(rand.NewSource(s.seed + 1))
	now := s.now()
	year := 365 * 24 * time.Hour

	out := make([]model.Transaction, 0, 20)
	for i := 0; i < 20; i++ {
		sym := simSymbols[r.Intn(len(simSymbols))]
		typ := model.Sell
		if r.Float64() > 0.5 {
			typ = model.Buy
		}
		qty := decimal.NewFromInt(int64(r.Intn(100) + 1))
		price := money(1000 + r.Float64()*2000)
		date := now.Add(-time.Duration(r.Float64() * float64(year)))
		if i < len(simSymbols) {
			// Opening buys predate everything else.
			sym, typ = simSymbols[i], model.Buy
			qty = decimal.NewFromInt(500)
			date = now.Add(-year - time.Duration(i+1)*24*time.Hour)
		}
		out = append(out, model.Transaction{
			ID:       fmt.Sprintf("txn_%d", i+1),
			Symbol:   sym,
			Exchange: "NSE",
			Type:     typ,
			Quantity: qty,
			Price:    price,
			Charges:  qty.Mul(price).Mul(decimal.RequireFromString("0.001")).Round(2),
			Date:     date,
			OrderID:  fmt.Sprintf("order_%d", i+1),
			Broker:   s.cfg.Name,
		})
	}

	filtered := out[:0]
	for _, t := range out {
		if !t.Date.Before(from) && !t.Date.After(to) {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Date.After(filtered[j].Date) })
	return filtered, nil
}

func (s *Simulated) HealthCheck(ctx context.Context) Health {
	return healthFrom(s.cfg.Name, time.Now(), nil)
}
