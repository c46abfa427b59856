package taxcalc

import "github.com/shopspring/decimal"

// ciiTable is the Cost Inflation Index notified by CBDT, keyed by the
// calendar year in which the fiscal year starts (base 2001-02 = 100).
var ciiTable = map[int]int64{
	2001: 100, 2002: 105, 2003: 109, 2004: 113, 2005: 117,
	2006: 122, 2007: 129, 2008: 137, 2009: 148, 2010: 167,
	2011: 184, 2012: 200, 2013: 220, 2014: 240, 2015: 254,
	2016: 264, 2017: 272, 2018: 280, 2019: 289, 2020: 301,
	2021: 317, 2022: 331, 2023: 348, 2024: 363, 2025: 376,
}

const (
	ciiFirstYear = 2001
	ciiLastYear  = 2025
)

// CII returns the index for year. Years outside the table clamp to the
// nearest endpoint (100 before 2001, 376 after 2025) and report ok=false.
func CII(year int) (value decimal.Decimal, ok bool) {
	switch {
	case year < ciiFirstYear:
		return decimal.NewFromInt(ciiTable[ciiFirstYear]), false
	case year > ciiLastYear:
		return decimal.NewFromInt(ciiTable[ciiLastYear]), false
	}
	return decimal.NewFromInt(ciiTable[year]), true
}
