// Package money converts integer cent amounts to display strings and
// decimal dollar values.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultCurrency is the storefront's settlement currency.
var DefaultCurrency = currency.USD

var printer = message.NewPrinter(language.AmericanEnglish)

// Dollars returns cents as a decimal amount with two places.
func Dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FromFloat converts an upstream float dollar amount into cents.
func FromFloat(value float64) int64 {
	return decimal.NewFromFloat(value).Shift(2).Round(0).IntPart()
}

// Format renders cents in the given ISO currency using its US English
// symbol, e.g. "$1,299.00" or "CA$25.00". Unknown codes fall back to USD.
func Format(cents int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = DefaultCurrency
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	symbol := printer.Sprint(currency.Symbol(unit))
	amount := printer.Sprint(number.Decimal(Dollars(cents).InexactFloat64(), number.Scale(2)))
	return sign + symbol + amount
}

// FormatUSD renders cents as US dollars.
func FormatUSD(cents int64) string {
	return Format(cents, "USD")
}
