package taxcalc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatINR renders an amount in rupees with Indian digit grouping,
// e.g. 1234567.8 -> "₹12,34,568". Fractions are rounded away.
func FormatINR(d decimal.Decimal) string {
	s := d.Abs().Round(0).String()
	var b strings.Builder
	b.WriteString("₹")
	if d.Round(0).IsNegative() {
		b.WriteString("-")
	}
	if len(s) <= 3 {
		b.WriteString(s)
		return b.String()
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	first := len(head) % 2
	if first > 0 {
		b.WriteString(head[:first])
	}
	for i := first; i < len(head); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}
