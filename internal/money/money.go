// Package money validates and formats payment amounts.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrNonPositive is returned for amounts of zero or less.
	ErrNonPositive = errors.New("amount must be greater than zero")
	// ErrPrecision is returned for amounts with more than two decimals.
	ErrPrecision = errors.New("amount has more than two decimal places")
	// ErrUnknownCurrency is returned for codes that are not ISO 4217 currencies.
	ErrUnknownCurrency = errors.New("unknown currency code")
)

// MaxAmount is the largest amount the stores accept (NUMERIC(12,2)).
var MaxAmount = decimal.RequireFromString("9999999999.99")

var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// ValidateAmount checks that amount is positive, in range, and has at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositive
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrPrecision
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("amount exceeds %s", MaxAmount.StringFixed(2))
	}
	return nil
}

// NormalizeCurrency upper-cases code and checks it against ISO 4217.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return unit.String(), nil
}

// Format renders an amount for chat: "$1,250.50", "€50.00" or "50.00 CHF".
func Format(amount decimal.Decimal, code string) string {
	s := groupThousands(amount.StringFixed(2))
	if sym, ok := symbols[code]; ok {
		return sym + s
	}
	return s + " " + code
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
