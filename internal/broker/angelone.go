package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"
	"taxsync-pro/pkg/smartconnect"

	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
)

// AngelOne logs in to SmartAPI with client code, PIN and a TOTP generated
// from the stored secret, then reads holdings and the day's trade book.
type AngelOne struct {
	cfg     Config
	creds   model.Credentials
	limiter *RateLimiter
	norm    Normalizer
	sc      *smartconnect.SmartConnect
	now     func() time.Time

	mu     sync.Mutex
	authed bool
}

func NewAngelOne(cfg Config, creds model.Credentials, limiter *RateLimiter, norm Normalizer, client *http.Client) *AngelOne {
	return &AngelOne{
		cfg:     cfg,
		creds:   creds,
		limiter: limiter,
		norm:    norm,
		sc: smartconnect.NewSmartConnect(smartconnect.Config{
			APIKey:     creds.APIKey,
			RootURL:    cfg.APIURL,
			HTTPClient: client,
		}),
		now: time.Now,
	}
}

func (a *AngelOne) Broker() string { return a.cfg.Name }

func (a *AngelOne) Credentials() model.Credentials {
	c := a.creds
	if tok := a.sc.AccessToken(); tok != "" {
		c.AccessToken = tok
	}
	return c
}

func (a *AngelOne) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx, a.cfg.Name)
}

func (a *AngelOne) Authenticate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.login(ctx); err != nil {
		return &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "authenticate", Err: err}
	}
	a.authed = true
	return nil
}

func (a *AngelOne) login(ctx context.Context) error {
	code, err := totp.GenerateCode(a.creds.TOTPSecret, a.now())
	if err != nil {
		return fmt.Errorf("totp: %w", err)
	}
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err = a.sc.GenerateSession(ctx, a.creds.ClientCode, a.creds.PIN, code)
	return err
}

func (a *AngelOne) ensureSession(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authed {
		return nil
	}
	if err := a.login(ctx); err != nil {
		return err
	}
	a.authed = true
	return nil
}

func (a *AngelOne) Holdings(ctx context.Context) ([]model.Holding, error) {
	if err := a.ensureSession(ctx); err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "holdings", Err: err}
	}
	if err := a.wait(ctx); err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "holdings", Err: err}
	}
	resp, err := a.sc.Holding(ctx)
	if err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "holdings", Err: err}
	}
	return a.norm.Normalize(resp.Raw, a.now())
}

type angelTrade struct {
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange"`
	TransactionType string          `json:"transactiontype"`
	FillSize        decimal.Decimal `json:"fillsize"`
	FillPrice       decimal.Decimal `json:"fillprice"`
	FillTime        string          `json:"filltime"`
	FillID          string          `json:"fillid"`
	OrderID         string          `json:"orderid"`
}

// Transactions reads the trade book, which SmartAPI only serves for the
// current trading day. Fills outside [from, to] are skipped.
func (a *AngelOne) Transactions(ctx context.Context, from, to time.Time) ([]model.Transaction, error) {
	if err := a.ensureSession(ctx); err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "transactions", Err: err}
	}
	if err := a.wait(ctx); err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "transactions", Err: err}
	}
	resp, err := a.sc.TradeBook(ctx)
	if err != nil {
		return nil, &model.UpstreamFetchError{Broker: a.cfg.Name, Op: "transactions", Err: err}
	}

	var trades []angelTrade
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, &trades); err != nil {
			return nil, &model.ValidationError{Field: "angelone.tradebook", Reason: err.Error()}
		}
	}

	day := a.now().In(markethours.IST)
	out := make([]model.Transaction, 0, len(trades))
	for _, t := range trades {
		ts, err := time.ParseInLocation("15:04:05", t.FillTime, markethours.IST)
		if err != nil {
			return nil, &model.ValidationError{Field: "angelone.filltime", Reason: err.Error()}
		}
		date := time.Date(day.Year(), day.Month(), day.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, markethours.IST)
		if date.Before(from) || date.After(to) {
			continue
		}
		typ := model.TransactionType(strings.ToLower(t.TransactionType))
		if typ != model.Buy && typ != model.Sell {
			return nil, &model.ValidationError{Field: "angelone.transactiontype", Reason: t.TransactionType}
		}
		out = append(out, model.Transaction{
			ID:       t.FillID,
			Symbol:   t.TradingSymbol,
			Exchange: t.Exchange,
			Type:     typ,
			Quantity: t.FillSize,
			Price:    t.FillPrice,
			Charges:  decimal.Zero,
			Date:     date,
			OrderID:  t.OrderID,
			Broker:   a.cfg.Name,
		})
	}
	return out, nil
}

func (a *AngelOne) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	err := a.ensureSession(ctx)
	if err == nil {
		_, err = a.sc.GetProfile(ctx)
	}
	return healthFrom(a.cfg.Name, start, err)
}
