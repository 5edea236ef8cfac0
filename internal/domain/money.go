package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units.
type Money int64

const minorUnitExp = 2

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	return MoneyFromDecimal(d), nil
}

// MoneyFromDecimal rounds half away from zero to the nearest minor unit.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(minorUnitExp).Round(0).IntPart())
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -minorUnitExp)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(minorUnitExp)
}

// Scale returns m*num/den, used to re-derive a line subtotal after a quantity change.
func (m Money) Scale(num, den int) Money {
	if den == 0 {
		return m
	}
	return Money(int64(m) * int64(num) / int64(den))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal numbers.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("unmarshal money: %w", err)
	}
	*m = MoneyFromDecimal(d)
	return nil
}

