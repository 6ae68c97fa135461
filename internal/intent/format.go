package intent

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatPrice renders a USD price: two grouped decimals from $1 up,
// six decimals below
func FormatPrice(price float64) string {
	if price >= 1 {
		return printer.Sprintf("$%.2f", price)
	}
	return fmt.Sprintf("$%.6f", price)
}

// FormatLargeNumber abbreviates market caps and volumes with T, B or M,
// otherwise a grouped integer
func FormatLargeNumber(n float64) string {
	switch {
	case n >= 1e12:
		return fmt.Sprintf("%.2fT", n/1e12)
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", n/1e6)
	}
	return printer.Sprintf("%d", int64(math.Round(n)))
}

// FormatPercent renders a percentage change with two decimals
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%.2f", pct)
}

// ChangeIndicator is an up chart for changes that round to a non-negative
// two-decimal value, down otherwise
func ChangeIndicator(pct float64) string {
	if math.Round(pct*100)/100 >= 0 {
		return "📈"
	}
	return "📉"
}
