package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the side of a broker trade.
type TransactionType string

const (
	Buy  TransactionType = "buy"
	Sell TransactionType = "sell"
)

// Transaction is a normalized trade from a broker's order or trade book.
type Transaction struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Exchange string          `json:"exchange"`
	Type     TransactionType `json:"transactionType"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Charges  decimal.Decimal `json:"charges"`
	Date     time.Time       `json:"date"`
	OrderID  string          `json:"orderId"`
	Broker   string          `json:"broker"`
}

// Amount is quantity * price.
func (t Transaction) Amount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Purchase is one acquisition of a symbol, used for wash-sale checks.
type Purchase struct {
	Symbol       string    `json:"symbol"`
	PurchaseDate time.Time `json:"purchaseDate"`
}

// Sale is a proposed or completed disposal of a symbol.
type Sale struct {
	Symbol   string    `json:"symbol"`
	SaleDate time.Time `json:"saleDate"`
}

// Purchases extracts the buy side of txns.
func Purchases(txns []Transaction) []Purchase {
	out := make([]Purchase, 0, len(txns))
	for _, t := range txns {
		if t.Type == Buy {
			out = append(out, Purchase{Symbol: t.Symbol, PurchaseDate: t.Date})
		}
	}
	return out
}
