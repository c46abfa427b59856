package markethours

import "time"

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (09:15 to 15:30 IST on trading days).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday reports whether t falls Monday to Friday in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// NextClose returns the next market close at or after t, after which
// closing prices are final.
func NextClose(t time.Time) time.Time {
	ist := t.In(IST)
	d := ist
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			cl := TodayClose(d)
			if !cl.Before(ist) {
				return cl
			}
		}
		d = d.AddDate(0, 0, 1)
	}
	return TodayClose(ist.AddDate(0, 0, 1))
}

// TodayClose returns today's market close time (3:30 PM IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// Status labels the market at t: "open", "closed" or "holiday". Holdings
// priced while open carry intraday prices.
func Status(t time.Time) string {
	switch {
	case IsMarketOpen(t):
		return "open"
	case IsTradingDay(t):
		return "closed"
	default:
		return "holiday"
	}
}
