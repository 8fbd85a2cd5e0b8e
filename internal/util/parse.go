package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonPriceRegex = regexp.MustCompile(`[^0-9.]`)

// ParsePrice extracts a decimal amount from scraped price text such as
// "$12.34" or "US$ 59.99". Returns false when no amount is present.
func ParsePrice(s string) (decimal.Decimal, bool) {
	cleaned := nonPriceRegex.ReplaceAllString(s, "")
	if cleaned == "" || cleaned == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// DecimalOrZero parses an API-supplied price string, substituting zero
// for anything unparseable so one bad field doesn't drop the record.
func DecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
