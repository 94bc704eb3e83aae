package backend

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"

	"coffee-checkout/internal/model"
)

// Amount is a money value in cents that travels as decimal reais.
// It marshals as a bare JSON number with two places (84.70) and
// unmarshals from numbers or numeric strings ("84.70", "84,70").
type Amount int64

// Cents returns the amount as int64 cents.
func (a Amount) Cents() int64 { return int64(a) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(model.ToDecimal(int64(a)).StringFixed(2)), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		s := string(bytes.Trim(b, `"`))
		if d, err := decimal.NewFromString(s); err == nil {
			*a = Amount(model.FromDecimal(d))
			return nil
		}
		*a = Amount(model.ParseCents(s))
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	*a = Amount(model.FromDecimal(d))
	return nil
}
