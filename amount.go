package beanpipe

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount represents a signed monetary value: a decimal quantity in a currency.
type Amount struct {
	value decimal.Decimal // as major unit value
	cur   string
}

// A builds an Amount from common numeric types.
func A[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T, currency string) Amount {
	return Amount{value: newDecimal(value), cur: currency}
}

func newDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case float32:
		return decimal.NewFromFloat32(t)
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int32:
		return decimal.NewFromInt32(t)
	case int64:
		return decimal.NewFromInt(t)
	default:
		panic("unsupported numeric type")
	}
}

// currency returns the amount's currency, never nil.
func (a Amount) currency() money.Currency {
	return *money.New(0, a.cur).Currency()
}

// String returns the amount formatted with its currency symbol.
func (a Amount) String() string {
	cur := a.currency()
	dec := a.value.Shift(int32(cur.Fraction))
	return cur.Formatter().Format(dec.IntPart())
}

// Value returns the decimal quantity in major units.
func (a Amount) Value() decimal.Decimal { return a.value }

// Simple wrappers around decimal operations.

func (a Amount) Currency() string      { return a.cur }
func (a Amount) Equal(b Amount) bool   { return a.value.Equal(b.value) && a.cur == b.cur }
func (a Amount) IsZero() bool          { return a.value.IsZero() }
func (a Amount) IsPositive() bool      { return a.value.IsPositive() }
func (a Amount) IsNegative() bool      { return a.value.IsNegative() }
func (a Amount) Neg() Amount           { return Amount{value: a.value.Neg(), cur: a.cur} }
func (a Amount) Abs() Amount           { return Amount{value: a.value.Abs(), cur: a.cur} }
func (a Amount) Add(b Amount) Amount   { return Amount{value: a.value.Add(b.value), cur: mergeCur(a, b)} }

// InverseOf reports whether a and b are additive inverses within epsilon in
// the same currency. Epsilon is expressed in major units and must not be
// negative.
func (a Amount) InverseOf(b Amount, epsilon decimal.Decimal) bool {
	if a.cur != b.cur {
		return false
	}
	return a.value.Add(b.value).Abs().LessThanOrEqual(epsilon)
}

// makes the "" currency totally weak.
func mergeCur(a, b Amount) string {
	if a.cur == "" {
		return b.cur
	}
	if b.cur == "" {
		return a.cur
	}
	if a.cur != b.cur {
		panic("currency mismatch " + a.cur + "!=" + b.cur)
	}
	return a.cur
}

func (a Amount) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("amount", a.value)
	w.Optional("currency", a.cur)
	return w.MarshalJSON()
}
