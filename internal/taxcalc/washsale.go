package taxcalc

import (
	"time"

	"taxsync-pro/internal/model"
)

// WashSaleWindow is the inclusive distance either side of a sale within which
// a same-symbol purchase taints the loss.
const WashSaleWindow = 30 * 24 * time.Hour

// IsWashSale reports whether any purchase of sale.Symbol lies within
// WashSaleWindow of sale.SaleDate, before or after.
// Only exact symbol matches count; lots are not split.
func IsWashSale(sale model.Sale, purchases []model.Purchase) bool {
	for _, p := range purchases {
		if p.Symbol != sale.Symbol {
			continue
		}
		d := sale.SaleDate.Sub(p.PurchaseDate)
		if d < 0 {
			d = -d
		}
		if d <= WashSaleWindow {
			return true
		}
	}
	return false
}
