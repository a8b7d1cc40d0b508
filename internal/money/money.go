// Package money converts between the decimal-string dollar amounts used in
// persisted and API form ("19.99") and the integer cents used for arithmetic
// and for the Clover APIs. All rounding is half-up to the cent.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CentsFromString parses a dollar amount like "19.99", "5" or "-3.50" into
// cents. At most two fraction digits are accepted.
func CentsFromString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	// The fraction is digit-checked separately: ParseInt would accept a
	// sign here and fold "1.-5" into 50 cents.
	var centPart int64
	switch {
	case len(frac) > 2:
		return 0, fmt.Errorf("invalid amount %q: more than 2 fraction digits", s)
	case len(frac) > 0:
		if !isDigits(frac) {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		d, _ := strconv.Atoi(frac)
		centPart = int64(d)
		if len(frac) == 1 {
			centPart *= 10
		}
	}

	cents := dollars*100 + centPart
	if neg {
		cents = -cents
	}
	return cents, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// StringFromCents formats cents as a dollar string with exactly two fraction
// digits: 1999 -> "19.99".
func StringFromCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// RoundHalfUp rounds a fractional cent amount to whole cents, ties away from
// zero. Used for tax and per-mile fee computation.
func RoundHalfUp(x float64) int64 {
	if x >= 0 {
		return int64(math.Floor(x + 0.5))
	}
	return -int64(math.Floor(-x + 0.5))
}

// PercentOf computes pct percent of amount, where pct is itself in cents
// (10.00% -> 1000). 5000 cents at 10.00% -> 500 cents, rounded half-up.
func PercentOf(amount, pctCents int64) int64 {
	return RoundHalfUp(float64(amount) * float64(pctCents) / 10000)
}
