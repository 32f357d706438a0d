package model

import "github.com/shopspring/decimal"

// Money pairs a decimal amount with the currency it is denominated in.
// Mixing currencies in a single arithmetic op is a programmer error and
// panics rather than silently producing a meaningless number.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(other Money) Money {
	if m.Currency != other.Currency {
		panic("model: currency mismatch in Money.Add: " + m.Currency + " vs " + other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

func (m Money) Sub(other Money) Money {
	if m.Currency != other.Currency {
		panic("model: currency mismatch in Money.Sub: " + m.Currency + " vs " + other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
