package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// newDecimal is a convenient factory for decimal.Decimal
func newDecimal[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	default:
		panic("unsupported type")
	}
}

// Quantity is an exact, unitless amount of an asset (shares, ounces, coins).
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity builds a Quantity, failing with ErrInvalidAmount when the value
// needs more than MoneyPrecision fractional digits.
func NewQuantity(value decimal.Decimal) (Quantity, error) {
	if value.Exponent() < -MoneyPrecision && !value.Equal(value.Round(MoneyPrecision)) {
		return Quantity{}, fmt.Errorf("%w: %s exceeds %d fractional digits", ErrInvalidAmount, value, MoneyPrecision)
	}
	return Quantity{value: value}, nil
}

// ParseQuantity builds a Quantity from a decimal string such as "12.5".
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %q is not a decimal quantity", ErrInvalidAmount, s)
	}
	return NewQuantity(d)
}

// Q is a convenient Quantity factory for trusted values. It panics on values
// a Quantity cannot represent.
func Q[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T) Quantity {
	q, err := NewQuantity(newDecimal(value))
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Equal(p Quantity) bool       { return q.value.Equal(p.value) }
func (q Quantity) LessThan(p Quantity) bool    { return q.value.LessThan(p.value) }
func (q Quantity) GreaterThan(p Quantity) bool { return q.value.GreaterThan(p.value) }
func (q Quantity) Add(p Quantity) Quantity     { return Quantity{value: q.value.Add(p.value)} }
func (q Quantity) Sub(p Quantity) Quantity     { return Quantity{value: q.value.Sub(p.value)} }
func (q Quantity) IsNegative() bool            { return q.value.IsNegative() }
func (q Quantity) IsPositive() bool            { return q.value.IsPositive() }
func (q Quantity) IsZero() bool                { return q.value.IsZero() }
func (q Quantity) String() string              { return q.value.String() }

// MarshalJSON encodes the quantity as a decimal string for exactness.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + q.value.String() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for Quantity.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	return q.value.UnmarshalJSON(data)
}
