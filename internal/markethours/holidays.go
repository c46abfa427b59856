package markethours

import "time"

// nseHolidays maps IST dates to NSE equity-segment trading holidays that
// fall on weekdays. Sessions on Muhurat trading days are not modelled.
var nseHolidays = map[string]string{
	// 2025
	"2025-02-26": "Mahashivratri",
	"2025-03-14": "Holi",
	"2025-03-31": "Id-ul-Fitr",
	"2025-04-10": "Mahavir Jayanti",
	"2025-04-14": "Dr. Baba Saheb Ambedkar Jayanti",
	"2025-04-18": "Good Friday",
	"2025-05-01": "Maharashtra Day",
	"2025-08-15": "Independence Day",
	"2025-08-27": "Ganesh Chaturthi",
	"2025-10-02": "Mahatma Gandhi Jayanti / Dussehra",
	"2025-10-21": "Diwali Laxmi Pujan",
	"2025-10-22": "Diwali Balipratipada",
	"2025-11-05": "Prakash Gurpurb Sri Guru Nanak Dev",
	"2025-12-25": "Christmas",

	// 2026
	"2026-01-26": "Republic Day",
	"2026-03-03": "Holi",
	"2026-03-26": "Shri Ram Navami",
	"2026-03-31": "Shri Mahavir Jayanti",
	"2026-04-03": "Good Friday",
	"2026-04-14": "Dr. Baba Saheb Ambedkar Jayanti",
	"2026-05-01": "Maharashtra Day",
	"2026-05-28": "Bakri Id",
	"2026-06-26": "Muharram",
	"2026-09-14": "Ganesh Chaturthi",
	"2026-10-02": "Mahatma Gandhi Jayanti",
	"2026-10-20": "Dussehra",
	"2026-11-10": "Diwali Balipratipada",
	"2026-11-24": "Prakash Gurpurb Sri Guru Nanak Dev",
	"2026-12-25": "Christmas",
}

// Holiday returns the name of the NSE holiday on t's IST date, if any.
func Holiday(t time.Time) (string, bool) {
	name, ok := nseHolidays[t.In(IST).Format("2006-01-02")]
	return name, ok
}

// IsHoliday reports whether t's IST date is an NSE holiday.
func IsHoliday(t time.Time) bool {
	_, ok := Holiday(t)
	return ok
}
