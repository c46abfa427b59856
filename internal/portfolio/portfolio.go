// Package portfolio consolidates holdings reported by several brokers into
// one view per instrument and summarizes the classified result.
//
// Everything here is a pure transform over already-fetched data; brokers that
// failed to sync are simply absent from the input.
package portfolio

import (
	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

// Merge consolidates holdings sharing (symbol, exchange).
//
// Quantities add and avgPrice becomes the quantity-weighted average cost.
// currentPrice comes from the constituent with the latest FetchedAt (later
// input wins ties). PurchaseDate is the earliest constituent date, so the
// oldest units are treated as disposed first; per-broker lots are kept in Lots.
// Output preserves first-appearance order.
func Merge(holdings []model.Holding) []model.Holding {
	index := make(map[string]int, len(holdings))
	out := make([]model.Holding, 0, len(holdings))

	for _, h := range holdings {
		k := h.Key()
		if i, ok := index[k]; ok {
			out[i] = combine(out[i], h)
			continue
		}
		index[k] = len(out)
		out = append(out, h)
	}
	return out
}

func combine(a, b model.Holding) model.Holding {
	m := a
	m.Quantity = a.Quantity.Add(b.Quantity)
	if m.Quantity.IsPositive() {
		cost := a.CostValue().Add(b.CostValue())
		m.AvgPrice = cost.Div(m.Quantity)
	}

	if !b.FetchedAt.Before(a.FetchedAt) {
		m.CurrentPrice = b.CurrentPrice
		m.FetchedAt = b.FetchedAt
	}

	switch {
	case a.PurchaseDate.IsZero():
		m.PurchaseDate = b.PurchaseDate
	case !b.PurchaseDate.IsZero() && b.PurchaseDate.Before(a.PurchaseDate):
		m.PurchaseDate = b.PurchaseDate
	}
	m.PurchaseDateEstimated = a.PurchaseDateEstimated || b.PurchaseDateEstimated

	if a.Broker != b.Broker {
		m.Broker = model.AggregateBroker
	}
	if m.ISIN == "" {
		m.ISIN = b.ISIN
	}

	lots := make([]model.Lot, 0, len(a.Lots)+len(b.Lots)+2)
	lots = append(lots, lotsOf(a)...)
	m.Lots = append(lots, lotsOf(b)...)
	return m
}

func lotsOf(h model.Holding) []model.Lot {
	if len(h.Lots) > 0 {
		return h.Lots
	}
	return []model.Lot{{
		Broker:       h.Broker,
		Quantity:     h.Quantity,
		AvgPrice:     h.AvgPrice,
		PurchaseDate: h.PurchaseDate,
	}}
}

// TotalQuantity sums quantity per "exchange:symbol" key.
func TotalQuantity(holdings []model.Holding) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, h := range holdings {
		out[h.Key()] = out[h.Key()].Add(h.Quantity)
	}
	return out
}

// Split expands merged holdings back into one holding per broker lot, the
// inverse of Merge up to average-price rounding. Every lot shares the
// holding's CurrentPrice and FetchedAt.
func Split(holdings []model.Holding) []model.Holding {
	out := make([]model.Holding, 0, len(holdings))
	for _, h := range holdings {
		if len(h.Lots) == 0 {
			out = append(out, h)
			continue
		}
		for _, l := range h.Lots {
			p := h
			p.Broker = l.Broker
			p.Quantity = l.Quantity
			p.AvgPrice = l.AvgPrice
			p.PurchaseDate = l.PurchaseDate
			p.Lots = nil
			out = append(out, p)
		}
	}
	return out
}

// FromBrokers keeps the holdings whose Broker is in brokers.
func FromBrokers(holdings []model.Holding, brokers map[string]bool) []model.Holding {
	var out []model.Holding
	for _, h := range holdings {
		if brokers[h.Broker] {
			out = append(out, h)
		}
	}
	return out
}
