package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

const currencyPrefix = "R$ "

// Price renders a value as Brazilian reais, e.g. "R$ 1.234,50".
func Price(value decimal.Decimal) string {
	rounded := value.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}

	fixed := rounded.Abs().StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	return sign + currencyPrefix + groupThousands(intPart) + "," + fracPart
}

// PriceFloat is Price for float64 prices as they come from the product API.
func PriceFloat(value float64) string {
	return Price(decimal.NewFromFloat(value))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var sb strings.Builder
	head := len(digits) % 3
	if head > 0 {
		sb.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
