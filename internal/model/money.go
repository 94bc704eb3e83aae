package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// All amounts inside the checkout are int64 cents (centavos).
// The backend speaks decimal reais ("84.70"); conversion happens at the wire edge.

// ParseCents converts decimal string amounts (reais) to cents (int64).
// Accepts both "84.70" and the Brazilian "84,70" notation.
// Examples: "99.00" → 9900, "1234,56" → 123456, "" → 0
func ParseCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// "1.234,56" → "1234.56"
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	// math.Round handles both positive and negative numbers correctly
	return int64(math.Round(f * 100))
}

// FromDecimal converts a decimal amount in reais to cents,
// rounding half away from zero.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// ToDecimal converts cents to a two-place decimal amount in reais.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ApplyPercentOff returns cents reduced by pct percent, rounded to whole
// cents half away from zero. 9970 at 5% → 9472 (94.715 → 94.72).
func ApplyPercentOff(cents int64, pct decimal.Decimal) int64 {
	if pct.LessThanOrEqual(decimal.Zero) {
		return cents
	}
	factor := decimal.NewFromInt(100).Sub(pct).Div(decimal.NewFromInt(100))
	return decimal.NewFromInt(cents).Mul(factor).Round(0).IntPart()
}

// FormatBRL renders cents the way the storefront displays prices.
// Examples: 8470 → "R$ 84,70", 123456 → "R$ 1.234,56", -500 → "-R$ 5,00"
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)

	// Thousands separator
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), cents%100)
}
