package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// NormalizeFunc decodes one broker's holdings payload. It only maps fields;
// Normalizer fills defaults, stamps broker and fetch time, and validates.
type NormalizeFunc func(raw []byte) ([]model.Holding, error)

// Registry maps broker name to its NormalizeFunc.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]NormalizeFunc
	now   func() time.Time
}

// NewRegistry returns a registry with every built-in broker registered.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]NormalizeFunc), now: time.Now}
	r.Register("zerodha", normalizeZerodha)
	r.Register("upstox", normalizeUpstox)
	r.Register("groww", normalizeGroww)
	r.Register("angelone", normalizeAngelOne)
	r.Register("fivepaisa", normalizeCanonical)
	r.Register("iifl", normalizeCanonical)
	return r
}

// Register adds or replaces the normalizer for name.
func (r *Registry) Register(name string, fn NormalizeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// For resolves the normalizer for broker once, for use by a Source.
func (r *Registry) For(broker string) (Normalizer, error) {
	r.mu.RLock()
	fn, ok := r.funcs[broker]
	r.mu.RUnlock()
	if !ok {
		return Normalizer{}, &model.UnsupportedBrokerError{Broker: broker}
	}
	return Normalizer{broker: broker, fn: fn}, nil
}

// Normalize converts a raw holdings payload from broker into canonical holdings.
func (r *Registry) Normalize(broker string, raw []byte) ([]model.Holding, error) {
	n, err := r.For(broker)
	if err != nil {
		return nil, err
	}
	return n.Normalize(raw, r.now())
}

// Normalizer is a resolved per-broker adapter.
type Normalizer struct {
	broker string
	fn     NormalizeFunc
}

// Broker returns the broker this normalizer decodes.
func (n Normalizer) Broker() string { return n.broker }

// Normalize decodes raw and returns valid, non-empty holdings. Exchange
// defaults to NSE and type to equity. Zero-quantity rows are dropped; any
// invalid row fails the whole payload.
func (n Normalizer) Normalize(raw []byte, fetchedAt time.Time) ([]model.Holding, error) {
	if n.fn == nil {
		return nil, &model.UnsupportedBrokerError{Broker: n.broker}
	}
	decoded, err := n.fn(raw)
	if err != nil {
		return nil, err
	}

	out := make([]model.Holding, 0, len(decoded))
	for i, h := range decoded {
		if h.Exchange == "" {
			h.Exchange = "NSE"
		}
		if h.InvestmentType == "" {
			h.InvestmentType = model.Equity
		}
		h.Broker = n.broker
		if h.FetchedAt.IsZero() {
			h.FetchedAt = fetchedAt
		}
		if err := h.Validate(); err != nil {
			if ve, ok := err.(*model.ValidationError); ok {
				return nil, &model.ValidationError{Field: fmt.Sprintf("%s[%d].%s", n.broker, i, ve.Field), Reason: ve.Reason}
			}
			return nil, err
		}
		if h.Quantity.IsZero() {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func decodePayload(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &model.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return nil
}

// ── Per-broker field maps ──

type zerodhaHolding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	ISIN          string          `json:"isin"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
}

func normalizeZerodha(raw []byte) ([]model.Holding, error) {
	var p struct {
		Data []zerodhaHolding `json:"data"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(p.Data))
	for _, r := range p.Data {
		out = append(out, model.Holding{
			Symbol:       r.TradingSymbol,
			Exchange:     r.Exchange,
			ISIN:         r.ISIN,
			Quantity:     r.Quantity,
			AvgPrice:     r.AveragePrice,
			CurrentPrice: r.LastPrice,
		})
	}
	return out, nil
}

type upstoxHolding struct {
	InstrumentToken string          `json:"instrument_token"`
	Exchange        string          `json:"exchange"`
	Quantity        decimal.Decimal `json:"quantity"`
	AvgCost         decimal.Decimal `json:"avg_cost"`
	LTP             decimal.Decimal `json:"ltp"`
}

func normalizeUpstox(raw []byte) ([]model.Holding, error) {
	var p struct {
		Data []upstoxHolding `json:"data"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(p.Data))
	for _, r := range p.Data {
		out = append(out, model.Holding{
			Symbol:       r.InstrumentToken,
			Exchange:     r.Exchange,
			Quantity:     r.Quantity,
			AvgPrice:     r.AvgCost,
			CurrentPrice: r.LTP,
		})
	}
	return out, nil
}

type growwHolding struct {
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

func normalizeGroww(raw []byte) ([]model.Holding, error) {
	var p struct {
		Holdings []growwHolding `json:"holdings"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(p.Holdings))
	for _, r := range p.Holdings {
		out = append(out, model.Holding{
			Symbol:       r.Symbol,
			Exchange:     r.Exchange,
			Quantity:     r.Quantity,
			AvgPrice:     r.AvgPrice,
			CurrentPrice: r.CurrentPrice,
		})
	}
	return out, nil
}

type angelOneHolding struct {
	SymbolToken string          `json:"symboltoken"`
	Exchange    string          `json:"exchange"`
	ISIN        string          `json:"isin"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgPrice    decimal.Decimal `json:"avgprice"`
	LTP         decimal.Decimal `json:"ltp"`
}

func normalizeAngelOne(raw []byte) ([]model.Holding, error) {
	var p struct {
		Data []angelOneHolding `json:"data"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(p.Data))
	for _, r := range p.Data {
		out = append(out, model.Holding{
			Symbol:       r.SymbolToken,
			Exchange:     r.Exchange,
			ISIN:         r.ISIN,
			Quantity:     r.Quantity,
			AvgPrice:     r.AvgPrice,
			CurrentPrice: r.LTP,
		})
	}
	return out, nil
}

// canonicalHolding is the format for brokers whose API already reports our
// field names, and for the simulated source.
type canonicalHolding struct {
	Symbol         string               `json:"symbol"`
	Exchange       string               `json:"exchange"`
	ISIN           string               `json:"isin"`
	Quantity       decimal.Decimal      `json:"quantity"`
	AvgPrice       decimal.Decimal      `json:"avgPrice"`
	CurrentPrice   decimal.Decimal      `json:"currentPrice"`
	InvestmentType model.InvestmentType `json:"investmentType"`
	PurchaseDate   *time.Time           `json:"purchaseDate"`
}

func normalizeCanonical(raw []byte) ([]model.Holding, error) {
	var p struct {
		Data []canonicalHolding `json:"data"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(p.Data))
	for _, r := range p.Data {
		h := model.Holding{
			Symbol:         r.Symbol,
			Exchange:       r.Exchange,
			ISIN:           r.ISIN,
			Quantity:       r.Quantity,
			AvgPrice:       r.AvgPrice,
			CurrentPrice:   r.CurrentPrice,
			InvestmentType: r.InvestmentType,
		}
		if r.PurchaseDate != nil {
			h.PurchaseDate = *r.PurchaseDate
		}
		out = append(out, h)
	}
	return out, nil
}

// NormalizeTransactions decodes a {"data": [...]} trade list in canonical
// field names and stamps broker on each row.
func NormalizeTransactions(broker string, raw []byte) ([]model.Transaction, error) {
	var p struct {
		Data []model.Transaction `json:"data"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Transaction, 0, len(p.Data))
	for i, t := range p.Data {
		switch {
		case t.Type != model.Buy && t.Type != model.Sell:
			return nil, &model.ValidationError{Field: fmt.Sprintf("%s[%d].transactionType", broker, i), Reason: "must be buy or sell"}
		case !t.Quantity.IsPositive():
			return nil, &model.ValidationError{Field: fmt.Sprintf("%s[%d].quantity", broker, i), Reason: "must be positive"}
		case t.Symbol == "":
			return nil, &model.ValidationError{Field: fmt.Sprintf("%s[%d].symbol", broker, i), Reason: "required"}
		}
		if t.Exchange == "" {
			t.Exchange = "NSE"
		}
		t.Broker = broker
		out = append(out, t)
	}
	return out, nil
}
