// Package brl centralises Brazilian display conventions: monetary values as
// "R$ 1.234,56", dates as dd/mm/yyyy and month/year as "jan/26".
package brl

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.BrazilianPortuguese)

var shortMonths = [...]string{
	"jan", "fev", "mar", "abr", "mai", "jun",
	"jul", "ago", "set", "out", "nov", "dez",
}

// Number formats a value with thousand separators and two decimals.
func Number(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// Money formats a value in the display convention, e.g. "R$ 11.999,00".
func Money(v float64) string {
	return "R$ " + Number(v)
}

// Date formats a date as dd/mm/yyyy; zero dates render empty.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// MonthYear formats a date as Portuguese short month plus two-digit year.
func MonthYear(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return shortMonths[int(t.Month())-1] + t.Format("/06")
}
