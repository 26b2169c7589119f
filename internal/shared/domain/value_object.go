package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a price is given without a currency.
const DefaultCurrency = "RUB"

// ErrInvalidMoney is returned for negative amounts or malformed currencies.
var ErrInvalidMoney = errors.New("invalid money")

// Money is an amount in a three-letter currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney validates and normalises an amount. An empty currency means RUB.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return Money{}, errors.Wrapf(ErrInvalidMoney, "currency %q", currency)
	}
	if amount.IsNegative() {
		return Money{}, errors.Wrapf(ErrInvalidMoney, "negative amount %s", amount)
	}
	return Money{amount: amount.Round(2), currency: currency}, nil
}

// ParseMoney parses a decimal string such as "1500.00".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.Wrapf(ErrInvalidMoney, "amount %q", amount)
	}
	return NewMoney(d, currency)
}

// MustMoney is NewMoney for constants in tests and fixtures.
func MustMoney(amount, currency string) Money {
	m, err := ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

// Equals compares amount and currency.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}
