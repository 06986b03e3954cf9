package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// safeDecimal coerces any payload value into a decimal, tolerating the
// format drift seen across providers: comma decimal separators, currency
// prefixes, stray whitespace. Unparseable values become zero rather than
// failing the whole receipt.
func safeDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case string:
		cleaned := strings.ReplaceAll(n, ",", ".")
		var b strings.Builder
		for i, r := range cleaned {
			if (r >= '0' && r <= '9') || r == '.' || (r == '-' && i == 0) {
				b.WriteRune(r)
			}
		}
		d, err := decimal.NewFromString(b.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// money normalizes a monetary amount to two decimal places.
func money(v any) decimal.Decimal {
	return safeDecimal(v).Round(2)
}

// quantity normalizes a quantity to three decimal places, defaulting to one
// when the payload carries nothing usable.
func quantity(v any) decimal.Decimal {
	q := safeDecimal(v).Round(3)
	if q.IsZero() {
		return decimal.NewFromInt(1)
	}
	return q
}
