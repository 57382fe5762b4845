package runkit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

// Price is a parsed price
type Price = model.Price

var (
	priceNumber = regexp.MustCompile(`\d[\d.,\s]*\d|\d`)
	currencyCodes = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|JPY|INR|CHF|SEK|NOK|DKK|PLN|NZD)\b`)
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"zł", "PLN"},
	{"$", "USD"},
}

// DefaultCurrency is assumed when a price carries no currency marker
const DefaultCurrency = "USD"

// ParsePrice extracts an amount and a currency from display text such as
// "$1,299.00", "1.299,00 €" or "EUR 15". A zero amount is a real price.
// It returns false when the text holds no number.
func ParsePrice(text string) (*Price, bool) {
	display := strings.Join(strings.Fields(text), " ")
	if display == "" {
		return nil, false
	}

	raw := priceNumber.FindString(display)
	if raw == "" {
		return nil, false
	}
	amount, ok := parseAmount(raw)
	if !ok || amount < 0 {
		return nil, false
	}

	return &Price{
		Amount:      amount,
		Currency:    detectCurrency(display),
		DisplayText: display,
	}, true
}

// parseAmount resolves thousands and decimal separators. When both "." and
// "," appear the rightmost one is the decimal mark; a lone separator followed
// by exactly three digits is a thousands separator.
func parseAmount(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, " ", "")
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func detectCurrency(text string) string {
	if m := currencyCodes.FindString(strings.ToUpper(text)); m != "" {
		return m
	}
	for _, c := range currencySymbols {
		if strings.Contains(text, c.symbol) {
			return c.code
		}
	}
	return DefaultCurrency
}
