package portfolio

import (
	"log"
	"sort"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

type openLot struct {
	qty  decimal.Decimal
	date time.Time
}

// OpenLotDates replays txns oldest first and returns, per symbol, the
// acquisition date of the oldest units still held. Sells consume the oldest
// lots first (FIFO). Fully sold symbols are absent.
func OpenLotDates(txns []model.Transaction) map[string]time.Time {
	sorted := make([]model.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	lots := make(map[string][]openLot)
	for _, t := range sorted {
		switch t.Type {
		case model.Buy:
			lots[t.Symbol] = append(lots[t.Symbol], openLot{qty: t.Quantity, date: t.Date})
		case model.Sell:
			remaining := t.Quantity
			q := lots[t.Symbol]
			for len(q) > 0 && remaining.IsPositive() {
				if q[0].qty.GreaterThan(remaining) {
					q[0].qty = q[0].qty.Sub(remaining)
					remaining = decimal.Zero
					break
				}
				remaining = remaining.Sub(q[0].qty)
				q = q[1:]
			}
			lots[t.Symbol] = q
		}
	}

	out := make(map[string]time.Time, len(lots))
	for sym, q := range lots {
		if len(q) > 0 {
			out[sym] = q[0].date
		}
	}
	return out
}

// ApplyPurchaseDates fills holdings that arrived without a purchase date from
// the broker's transaction history. Holdings with no usable history get
// fallback and are marked estimated.
func ApplyPurchaseDates(holdings []model.Holding, txns []model.Transaction, fallback time.Time) []model.Holding {
	dates := OpenLotDates(txns)
	out := make([]model.Holding, len(holdings))
	for i, h := range holdings {
		if h.PurchaseDate.IsZero() {
			if d, ok := dates[h.Symbol]; ok {
				h.PurchaseDate = d
			} else {
				log.Printf("[portfolio] no purchase date for %s at %s, using %s", h.Symbol, h.Broker, fallback.Format("2006-01-02"))
				h.PurchaseDate = fallback
				h.PurchaseDateEstimated = true
			}
		}
		out[i] = h
	}
	return out
}
