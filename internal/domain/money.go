package domain

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyPlaces is the number of decimal places kept for rate-derived amounts.
const MoneyPlaces = 2

func init() {
	// Amounts travel as JSON numbers on both the Order API and our own responses.
	decimal.MarshalJSONWithoutQuotes = true
}

// RoundMoney rounds an amount to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Money converts a float literal into a decimal amount. Intended for fixtures and config.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

var (
	displayLanguage = language.BrazilianPortuguese
	displayPrinter  = message.NewPrinter(displayLanguage)
	currencySymbols = map[currency.Unit]string{
		currency.BRL: "R$",
	}
)

// DisplayCurrency returns the ISO currency used for display labels.
func DisplayCurrency() currency.Unit {
	unit, _ := currency.FromTag(displayLanguage)
	return unit
}

// FormatMoney renders an amount as a pt-BR currency label, e.g. "R$ 5,00".
func FormatMoney(d decimal.Decimal) string {
	unit := DisplayCurrency()
	symbol, ok := currencySymbols[unit]
	if !ok {
		symbol = unit.String()
	}
	return symbol + " " + displayPrinter.Sprintf("%.2f", RoundMoney(d).InexactFloat64())
}
