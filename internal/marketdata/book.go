package marketdata

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BookDepth is how many levels each side of the book retains.
const BookDepth = 20

type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// BookDelta carries one incremental depth update. A zero quantity deletes
// the level at that price; anything else upserts it.
type BookDelta struct {
	Bids []BookLevel
	Asks []BookLevel
}

// Apply folds a delta into the book, re-sorts both sides (bids descending,
// asks ascending) and truncates to BookDepth.
func (b *OrderBook) Apply(delta BookDelta) {
	b.Bids = applySide(b.Bids, delta.Bids)
	b.Asks = applySide(b.Asks, delta.Asks)
	sort.Slice(b.Bids, func(i, j int) bool { return b.Bids[i].Price.GreaterThan(b.Bids[j].Price) })
	sort.Slice(b.Asks, func(i, j int) bool { return b.Asks[i].Price.LessThan(b.Asks[j].Price) })
	if len(b.Bids) > BookDepth {
		b.Bids = b.Bids[:BookDepth]
	}
	if len(b.Asks) > BookDepth {
		b.Asks = b.Asks[:BookDepth]
	}
}

func applySide(levels []BookLevel, updates []BookLevel) []BookLevel {
	for _, u := range updates {
		idx := -1
		for i, l := range levels {
			if l.Price.Equal(u.Price) {
				idx = i
				break
			}
		}
		if u.Quantity.IsZero() {
			if idx >= 0 {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
			continue
		}
		if idx >= 0 {
			levels[idx] = u
		} else {
			levels = append(levels, u)
		}
	}
	return levels
}

// Spread returns the relative bid/ask spread as a percentage of the best
// bid, zero when either side is empty.
func (b *OrderBook) Spread() decimal.Decimal {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero
	}
	best := b.Bids[0].Price
	if !best.IsPositive() {
		return decimal.Zero
	}
	return b.Asks[0].Price.Sub(best).Div(best).Mul(decimal.NewFromInt(100))
}
