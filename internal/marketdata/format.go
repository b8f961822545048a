package marketdata

import (
	"github.com/shopspring/decimal"
)

var (
	one   = decimal.NewFromInt(1)
	cent  = decimal.NewFromFloat(0.01)
	kilo  = decimal.NewFromInt(1_000)
	mega  = decimal.NewFromInt(1_000_000)
	giga  = decimal.NewFromInt(1_000_000_000)
)

// FormatPrice renders a price with precision tiers: whole units get 2
// decimals, cents 4, dust 8.
func FormatPrice(price decimal.Decimal) string {
	switch {
	case price.GreaterThanOrEqual(one):
		return price.StringFixed(2)
	case price.GreaterThanOrEqual(cent):
		return price.StringFixed(4)
	default:
		return price.StringFixed(8)
	}
}

// FormatPercent prefixes non-negative percentages with a plus sign.
func FormatPercent(pct decimal.Decimal) string {
	if pct.Sign() >= 0 {
		return "+" + pct.StringFixed(2) + "%"
	}
	return pct.StringFixed(2) + "%"
}

func FormatVolume(volume decimal.Decimal) string {
	switch {
	case volume.GreaterThanOrEqual(giga):
		return "$" + volume.Div(giga).StringFixed(2) + "B"
	case volume.GreaterThanOrEqual(mega):
		return "$" + volume.Div(mega).StringFixed(2) + "M"
	case volume.GreaterThanOrEqual(kilo):
		return "$" + volume.Div(kilo).StringFixed(2) + "K"
	default:
		return "$" + volume.StringFixed(2)
	}
}
