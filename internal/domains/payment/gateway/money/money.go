// Package money converts decimal major-unit amounts to the representations
// payment providers expect on the wire and back.
package money

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// zeroDecimal lists ISO-4217 currencies without a minor unit.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// IsZeroDecimal reports whether currency has no minor unit.
func IsZeroDecimal(currency string) bool {
	return zeroDecimal[strings.ToUpper(currency)]
}

// Exponent is the number of minor-unit digits for currency.
func Exponent(currency string) int32 {
	if IsZeroDecimal(currency) {
		return 0
	}
	return 2
}

// MinorUnits converts a major-unit amount to integer minor units for the
// currency, rounding half away from zero (e.g. 19.99 USD -> 1999, 500 JPY -> 500).
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := Exponent(currency)
	return amount.Shift(exp).Round(0).IntPart()
}

// MajorUnits is the inverse of MinorUnits.
func MajorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// Subunits converts to a fixed x100 integer regardless of currency, as
// required by providers that always bill in paise-like units.
func Subunits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromSubunits is the inverse of Subunits.
func FromSubunits(subunits int64) decimal.Decimal {
	return decimal.New(subunits, -2)
}

// Fixed2 renders an amount as a decimal string with exactly two places
// ("149.9" -> "149.90").
func Fixed2(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ParseFixed2 parses a provider decimal string and truncates it to two places.
func ParseFixed2(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Truncate(2), nil
}

// ParseSubunits parses an integer subunit string ("14999") into major units.
func ParseSubunits(s string) (decimal.Decimal, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount: %w", err)
	}
	return FromSubunits(n), nil
}
