package conversation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/creatorpay/tracker/internal/money"
)

// DefaultSymbols maps currency symbols to ISO codes.
var DefaultSymbols = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

var amountPattern = regexp.MustCompile(`^(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?(?:\s*([A-Za-z]{3}))?$`)

// AmountParser parses amounts such as "50", "$1,250.50" or "€50 EUR".
type AmountParser struct {
	DefaultCurrency string
	Symbols         map[string]string
}

// ParseAmount parses text with the default symbol table.
func ParseAmount(text, defaultCurrency string) (decimal.Decimal, string, error) {
	return AmountParser{DefaultCurrency: defaultCurrency, Symbols: DefaultSymbols}.Parse(text)
}

// Parse returns the amount and its currency. An explicit ISO code wins over a symbol.
func (p AmountParser) Parse(text string) (decimal.Decimal, string, error) {
	text = strings.TrimSpace(text)
	currency := p.DefaultCurrency
	for _, sym := range p.symbolsLongestFirst() {
		if rest, ok := strings.CutPrefix(text, sym); ok {
			text = strings.TrimSpace(rest)
			currency = p.Symbols[sym]
			break
		}
	}

	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, "", newError(CodeInvalidAmountFormat, "Use a number like 50, $50 or 50 EUR.", nil)
	}
	number := strings.ReplaceAll(m[1], ",", "")
	if m[2] != "" {
		number += "." + m[2]
	}
	amount, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero, "", newError(CodeInvalidAmountFormat, "Use a number like 50, $50 or 50 EUR.", err)
	}
	if err := money.ValidateAmount(amount); err != nil {
		return decimal.Zero, "", newError(CodeInvalidAmountFormat, amountReason(err), err)
	}
	if m[3] != "" {
		currency = m[3]
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, "", newError(CodeInvalidAmountFormat, "Unknown currency "+strings.ToUpper(currency)+".", err)
	}
	return amount, code, nil
}

func (p AmountParser) symbolsLongestFirst() []string {
	out := make([]string, 0, len(p.Symbols))
	for sym := range p.Symbols {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func amountReason(err error) string {
	switch err {
	case money.ErrNonPositive:
		return "Amount must be greater than zero."
	case money.ErrPrecision:
		return "Use at most two decimal places."
	}
	return "Amount is too large."
}
