package models

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency currency.Unit   `json:"-"`
}

func NewMoney(amount decimal.Decimal, unit currency.Unit) Money {
	return Money{Amount: amount.Round(2), Currency: unit}
}

// String renders the amount with two decimals, e.g. "BRL 25.50".
func (m Money) String() string {
	return m.Currency.String() + " " + m.Amount.StringFixed(2)
}
