// Package money implements fixed-point currency arithmetic in minor units.
// Amounts are integer cents; fractional intermediate results round half-up
// at the point they become a ledger amount.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is a currency amount in minor units (USD cents).
type Cents int64

// Parse converts a decimal string like "1250.40" to cents. At most two
// fractional digits are accepted.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := Cents(w*100 + f)
	if negative {
		cents = -cents
	}
	return cents, nil
}

// String renders cents as a plain decimal, e.g. 123456 -> "1234.56".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseHours converts a decimal hour string like "2.5" to hundredths of an
// hour (250).
func ParseHours(s string) (int64, error) {
	cents, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return int64(cents), nil
}

// TimeAmount computes hours*rate for a time entry. Hours are hundredths of
// an hour, rate is cents per hour; the product rounds half-up to the cent.
func TimeAmount(hoursHundredths int64, rate Cents) Cents {
	return roundDiv(hoursHundredths*int64(rate), 100)
}

// TaxAmount applies a tax rate expressed in basis points (hundredths of a
// percent) to a subtotal, rounding half-up.
func TaxAmount(subtotal Cents, rateBasisPoints int64) Cents {
	return roundDiv(int64(subtotal)*rateBasisPoints, 10000)
}

// InvoiceTotal is subtotal + tax - discount.
func InvoiceTotal(subtotal, tax, discount Cents) Cents {
	return subtotal + tax - discount
}

// roundDiv divides with round-half-up semantics (half away from zero).
func roundDiv(numerator, denominator int64) Cents {
	if denominator <= 0 {
		return 0
	}
	if numerator >= 0 {
		return Cents((numerator + denominator/2) / denominator)
	}
	return Cents(-((-numerator + denominator/2) / denominator))
}
