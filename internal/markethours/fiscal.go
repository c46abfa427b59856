package markethours

import (
	"fmt"
	"time"
)

// FiscalYearEnd returns the close of the Indian fiscal year containing t:
// 31 March 23:59:59 IST, rolled forward a year once that instant has passed.
func FiscalYearEnd(t time.Time) time.Time {
	ist := t.In(IST)
	end := time.Date(ist.Year(), time.March, 31, 23, 59, 59, 0, IST)
	if ist.After(end) {
		end = time.Date(ist.Year()+1, time.March, 31, 23, 59, 59, 0, IST)
	}
	return end
}

// FiscalYearStart returns 1 April 00:00 IST of the fiscal year containing t.
func FiscalYearStart(t time.Time) time.Time {
	end := FiscalYearEnd(t)
	return time.Date(end.Year()-1, time.April, 1, 0, 0, 0, 0, IST)
}

// FiscalYearLabel formats the fiscal year containing t, e.g. "2025-26".
func FiscalYearLabel(t time.Time) string {
	start := FiscalYearStart(t).Year()
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// DaysUntil returns the whole days from 'from' to 'to', rounded up.
// Returns 0 if 'to' is not after 'from'.
func DaysUntil(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}
