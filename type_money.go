package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MoneyPrecision is the maximum number of fractional digits a Money or
// Quantity value may carry. Eight digits cover crypto-scale quantities.
const MoneyPrecision = 8

// Money represents an exact monetary value in a single currency.
// The zero value is the weak "no amount, no currency" value.
type Money struct {
	value decimal.Decimal // major unit value
	cur   string
}

// NewMoney builds a Money from an exact decimal value and an ISO currency
// code. It fails with ErrInvalidAmount when the value needs more than
// MoneyPrecision fractional digits, and with ErrCurrencyMismatch when the
// currency code is empty.
func NewMoney(value decimal.Decimal, currency string) (Money, error) {
	if currency == "" {
		return Money{}, fmt.Errorf("%w: missing currency code", ErrCurrencyMismatch)
	}
	if value.Exponent() < -MoneyPrecision && !value.Equal(value.Round(MoneyPrecision)) {
		return Money{}, fmt.Errorf("%w: %s exceeds %d fractional digits", ErrInvalidAmount, value, MoneyPrecision)
	}
	return Money{value: value, cur: currency}, nil
}

// ParseMoney builds a Money from a decimal string such as "1000.00".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, amount)
	}
	return NewMoney(d, currency)
}

// M is a convenient Money factory for trusted values. It panics on values a
// Money cannot represent; use NewMoney or ParseMoney for caller input.
func M[T float32 | float64 | int | int32 | int64 | decimal.Decimal](value T, currency string) Money {
	m, err := NewMoney(newDecimal(value), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money { return Money{value: decimal.Zero, cur: currency} }

func (m Money) Currency() string        { return m.cur }
func (m Money) Amount() decimal.Decimal { return m.value }
func (m Money) IsZero() bool            { return m.value.IsZero() }
func (m Money) IsPositive() bool        { return m.value.IsPositive() }
func (m Money) IsNegative() bool        { return m.value.IsNegative() }

// Equal reports whether both value and currency are equal.
func (m Money) Equal(n Money) bool { return m.value.Equal(n.value) && m.cur == n.cur }

// Add returns m+n. It fails with ErrCurrencyMismatch when the operand
// currencies differ; the zero Money's "" currency is weak and adopts the
// other operand's currency.
func (m Money) Add(n Money) (Money, error) {
	cur, err := sameCurrency(m, n)
	if err != nil {
		return Money{}, err
	}
	return Money{value: m.value.Add(n.value), cur: cur}, nil
}

// Sub returns m-n with the same currency rules as Add.
func (m Money) Sub(n Money) (Money, error) {
	cur, err := sameCurrency(m, n)
	if err != nil {
		return Money{}, err
	}
	return Money{value: m.value.Sub(n.value), cur: cur}, nil
}

// Cmp compares two amounts: -1 when m<n, 0 when equal, +1 when m>n.
func (m Money) Cmp(n Money) (int, error) {
	if _, err := sameCurrency(m, n); err != nil {
		return 0, err
	}
	return m.value.Cmp(n.value), nil
}

// Convert returns the value expressed in another currency at an explicit
// rate. Conversion is never inferred; the rate must be positive.
func (m Money) Convert(rate decimal.Decimal, currency string) (Money, error) {
	if !rate.IsPositive() {
		return Money{}, fmt.Errorf("%w: conversion rate %s is not positive", ErrInvalidAmount, rate)
	}
	return NewMoney(m.value.Mul(rate).Round(MoneyPrecision), currency)
}

// String renders the amount with the currency's symbol and fraction rules.
func (m Money) String() string {
	if m.cur == "" {
		return m.value.String()
	}
	cur := *money.New(0, m.cur).Currency()
	return cur.Formatter().Format(m.value.Shift(int32(cur.Fraction)).IntPart())
}

func sameCurrency(a, b Money) (string, error) {
	if a.cur == "" {
		return b.cur, nil
	}
	if b.cur == "" {
		return a.cur, nil
	}
	if a.cur != b.cur {
		return "", fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, a.cur, b.cur)
	}
	return a.cur, nil
}

// MarshalJSON encodes the amount as a decimal string so that a decode
// reproduces the value exactly.
func (m Money) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("amount", m.value.String())
	w.Optional("currency", m.cur)
	return w.MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.value = raw.Amount
	m.cur = raw.Currency
	return nil
}
