package economy

import (
	"cmp"
	"slices"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
)

// FairMarketPrice averages the current price of a good across every system
// market and every live player listing. It reports false when nobody trades it.
func (e *EconomySystem) FairMarketPrice(itemName string) (uint32, bool) {
	var sum uint64
	var n uint64
	for _, m := range e.Markets {
		if mi, ok := m.Items[itemName]; ok {
			sum += uint64(mi.CurrentPrice)
			n++
		}
	}
	for _, l := range e.Player.Listings {
		if l.Item.Name == itemName {
			sum += uint64(l.PricePerUnit)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return uint32(sum / n), true
}

// PricePoint is one market's offer for a good.
type PricePoint struct {
	LocationID string `json:"location_id"`
	Price      uint32 `json:"price"`
	Quantity   uint32 `json:"quantity"`
}

// PriceComparison lists every market stocking a good, cheapest first.
func (e *EconomySystem) PriceComparison(itemName string) []PricePoint {
	out := make([]PricePoint, 0)
	for id, m := range e.Markets {
		if mi, ok := m.Items[itemName]; ok {
			out = append(out, PricePoint{LocationID: id, Price: mi.CurrentPrice, Quantity: mi.Quantity})
		}
	}
	slices.SortFunc(out, func(a, b PricePoint) int {
		return cmp.Or(cmp.Compare(a.Price, b.Price), cmp.Compare(a.LocationID, b.LocationID))
	})
	return out
}

// MarketRating is how expensive a market is for a category relative to the
// goods' base prices. Below 1 is cheap.
type MarketRating struct {
	LocationID string  `json:"location_id"`
	PriceRatio float64 `json:"price_ratio"`
}

// BestMarketsForCategory rates every market stocking goods of a category,
// cheapest first. Buyers read from the head; sellers from the tail.
func (e *EconomySystem) BestMarketsForCategory(cat item.Category) []MarketRating {
	out := make([]MarketRating, 0)
	for id, m := range e.Markets {
		var sum float64
		var n int
		for _, mi := range m.Items {
			if !cat.Includes(mi.Item.Category) || mi.BasePrice == 0 {
				continue
			}
			sum += float64(mi.CurrentPrice) / float64(mi.BasePrice)
			n++
		}
		if n > 0 {
			out = append(out, MarketRating{LocationID: id, PriceRatio: sum / float64(n)})
		}
	}
	slices.SortFunc(out, func(a, b MarketRating) int {
		return cmp.Or(cmp.Compare(a.PriceRatio, b.PriceRatio), cmp.Compare(a.LocationID, b.LocationID))
	})
	return out
}

// TrendSeries is one good's combined price history.
type TrendSeries struct {
	ItemName string              `json:"item_name"`
	Points   []market.PricePoint `json:"points"`
}

// MarketTrends merges each good's system-market history with its hourly
// player-exchange averages into one series ordered by time. When several
// sources share a timestamp the first in location order wins, and player
// averages only fill timestamps no market recorded.
func (e *EconomySystem) MarketTrends(itemNames []string) []TrendSeries {
	out := make([]TrendSeries, 0, len(itemNames))
	for _, name := range itemNames {
		seen := make(map[uint64]bool)
		var pts []market.PricePoint
		add := func(p market.PricePoint) {
			if seen[p.Timestamp] {
				return
			}
			seen[p.Timestamp] = true
			pts = append(pts, p)
		}
		for _, id := range e.MarketIDs() {
			if mi, ok := e.Markets[id].Items[name]; ok {
				for _, p := range mi.PriceHistory {
					add(p)
				}
			}
		}
		for _, t := range e.Player.TrendFor(name) {
			add(market.PricePoint{Timestamp: t.HourTimestamp, Price: t.AveragePrice})
		}
		slices.SortFunc(pts, func(a, b market.PricePoint) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
		out = append(out, TrendSeries{ItemName: name, Points: pts})
	}
	return out
}
