package provider

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

const orderTimeLayout = "060102150405"

// BuildOrderID builds a fixed width bank order id: yyMMddHHmmss followed by
// the upper-cased alphanumerics of ref, zero padded or truncated to width.
func BuildOrderID(now time.Time, ref string, width int) string {
	var b strings.Builder
	b.WriteString(now.Format(orderTimeLayout))
	for _, r := range ref {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	id := b.String()
	if width <= 0 {
		return id
	}
	if len(id) > width {
		return id[:width]
	}
	return id + strings.Repeat("0", width-len(id))
}

var currencyNumeric = map[string]string{
	"TRY": "949",
	"USD": "840",
	"EUR": "978",
	"GBP": "826",
	"JPY": "392",
	"RUB": "643",
	"CHF": "756",
}

// CurrencyNumeric returns the ISO 4217 numeric code of an alphabetic code
func CurrencyNumeric(code string) (string, bool) {
	n, ok := currencyNumeric[strings.ToUpper(code)]
	return n, ok
}

// CurrencyAlpha is the inverse of CurrencyNumeric
func CurrencyAlpha(numeric string) (string, bool) {
	for alpha, n := range currencyNumeric {
		if n == numeric {
			return alpha, true
		}
	}
	return "", false
}

// FormatAmount renders a decimal with two fraction digits and a dot
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatAmountComma renders a decimal with two fraction digits and a comma
func FormatAmountComma(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

// MinorUnits returns the amount in the smallest currency unit ("100.00" -> 10000)
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// MinorUnitsString is MinorUnits as a string
func MinorUnitsString(d decimal.Decimal) string {
	return strconv.FormatInt(MinorUnits(d), 10)
}

// InstallmentString returns the installment field most banks expect:
// empty for a single payment, the count otherwise.
func InstallmentString(n int) string {
	if n <= 1 {
		return ""
	}
	return strconv.Itoa(n)
}

// ParseAmount parses bank amount strings, accepting a comma decimal separator
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

// FirstNonEmpty returns the first non-empty value
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
