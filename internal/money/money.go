// Package money formats and parses integer minor-currency-unit amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorDigits is the number of minor-unit digits for every supported currency.
const MinorDigits = 2

// Format renders a minor-unit amount as a major-unit string, e.g. 1099 -> "10.99".
func Format(minor int64) string {
	return decimal.New(minor, -MinorDigits).StringFixed(MinorDigits)
}

// FormatWithCurrency prefixes the formatted amount with a currency code.
func FormatWithCurrency(minor int64, currency string) string {
	if currency == "" {
		return Format(minor)
	}
	return strings.ToUpper(currency) + " " + Format(minor)
}

// Parse converts a major-unit string such as "49.5" into minor units.
// More than MinorDigits fractional digits is an error rather than a rounding.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(MinorDigits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: at most %d decimal places", s, MinorDigits)
	}
	return scaled.IntPart(), nil
}
