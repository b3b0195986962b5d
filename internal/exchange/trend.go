package exchange

import (
	"math"
	"math/bits"
	"slices"
	"sort"
)

// MaxTrendBuckets is one rolling day of hourly buckets.
const MaxTrendBuckets = 24

const hour = 3600

// PriceTrend is one hour of player trading in a good.
type PriceTrend struct {
	ItemName      string `json:"item_name"`
	AveragePrice  uint32 `json:"average_price"` // Quantity-weighted, truncated
	LowestPrice   uint32 `json:"lowest_price"`
	HighestPrice  uint32 `json:"highest_price"`
	VolumeTraded  uint32 `json:"volume_traded"`
	HourTimestamp uint64 `json:"hour_timestamp"`
}

// UpdatePriceTrend folds a trade into the good's bucket for the current hour.
func (pm *PlayerMarket) UpdatePriceTrend(itemName string, price, quantity uint32, now uint64) {
	if quantity == 0 {
		return
	}
	bucket := now - now%hour
	trends := pm.Trends[itemName]

	if n := len(trends); n > 0 && trends[n-1].HourTimestamp == bucket {
		t := &trends[n-1]
		volume := uint64(t.VolumeTraded) + uint64(quantity)
		t.AveragePrice = weightedAverage(t.AveragePrice, t.VolumeTraded, price, quantity, volume)
		t.LowestPrice = min(t.LowestPrice, price)
		t.HighestPrice = max(t.HighestPrice, price)
		t.VolumeTraded = uint32(min(volume, math.MaxUint32))
		return
	}

	trends = append(trends, PriceTrend{
		ItemName:      itemName,
		AveragePrice:  price,
		LowestPrice:   price,
		HighestPrice:  price,
		VolumeTraded:  quantity,
		HourTimestamp: bucket,
	})
	if len(trends) > MaxTrendBuckets {
		trends = slices.Clone(trends[len(trends)-MaxTrendBuckets:])
	}
	pm.Trends[itemName] = trends
}

// weightedAverage is (avg×vol + price×qty) / total in 128-bit arithmetic; the
// quotient never exceeds the larger price, so it fits a uint32.
func weightedAverage(avg, vol, price, qty uint32, total uint64) uint32 {
	hi1, lo1 := bits.Mul64(uint64(avg), uint64(vol))
	hi2, lo2 := bits.Mul64(uint64(price), uint64(qty))
	lo, carry := bits.Add64(lo1, lo2, 0)
	q, _ := bits.Div64(hi1+hi2+carry, lo, total)
	return uint32(q)
}

// TrendFor returns a copy of a good's hourly buckets, oldest first.
func (pm *PlayerMarket) TrendFor(itemName string) []PriceTrend {
	return slices.Clone(pm.Trends[itemName])
}

// Stats summarises player trading in one good.
type Stats struct {
	ItemName           string       `json:"item_name"`
	ListingCount       int          `json:"listing_count"`
	QuantityAvailable  uint32       `json:"quantity_available"`
	MinPrice           uint32       `json:"min_price"`
	MaxPrice           uint32       `json:"max_price"`
	AvgPrice           uint32       `json:"avg_price"` // Quantity-weighted over live listings
	SalesCount         int          `json:"sales_count"`
	SalesVolume        uint64       `json:"sales_volume"`
	SalesValue         uint64       `json:"sales_value"`
	PriceChangePercent float64      `json:"price_change_percent"`
	PriceHistory       []PriceTrend `json:"price_history,omitempty"`
}

// MarketStatistics aggregates live listings, sales history, and the day's
// price movement for a good. It reports false when nothing is listed.
func (pm *PlayerMarket) MarketStatistics(itemName string) (Stats, bool) {
	s := Stats{ItemName: itemName}
	var value uint64
	for _, l := range pm.Listings {
		if l.Item.Name != itemName {
			continue
		}
		if s.ListingCount == 0 || l.PricePerUnit < s.MinPrice {
			s.MinPrice = l.PricePerUnit
		}
		s.MaxPrice = max(s.MaxPrice, l.PricePerUnit)
		s.ListingCount++
		s.QuantityAvailable += l.Quantity
		value += uint64(l.PricePerUnit) * uint64(l.Quantity)
	}
	if s.ListingCount == 0 {
		return Stats{}, false
	}
	if s.QuantityAvailable > 0 {
		s.AvgPrice = uint32(value / uint64(s.QuantityAvailable))
	}

	for _, p := range pm.Purchases {
		if p.ItemName != itemName {
			continue
		}
		s.SalesCount++
		s.SalesVolume += uint64(p.Quantity)
		s.SalesValue += p.TotalPrice
	}

	s.PriceHistory = pm.TrendFor(itemName)
	if h := s.PriceHistory; len(h) >= 2 && h[0].AveragePrice > 0 {
		oldest, newest := float64(h[0].AveragePrice), float64(h[len(h)-1].AveragePrice)
		s.PriceChangePercent = (newest - oldest) / oldest * 100
	}
	return s, true
}

// ProcessExpirations removes listings past their expiry, rejecting any bids
// still pending on them, and marks pending bids past their own expiry as
// Expired. Both stay on record.
func (pm *PlayerMarket) ProcessExpirations(now uint64) (listingIDs, bidIDs []string) {
	lapsed := make(map[string]bool)
	for id, l := range pm.Listings {
		if l.ExpiresAt != nil && now > *l.ExpiresAt {
			delete(pm.Listings, id)
			listingIDs = append(listingIDs, id)
			lapsed[id] = true
		}
	}
	for id, b := range pm.Bids {
		if b.Status != BidPending {
			continue
		}
		// A bid cannot outlive its listing.
		if lapsed[b.ListingID] {
			b.Status = BidRejected
			continue
		}
		if b.ExpiresAt != nil && now > *b.ExpiresAt {
			b.Status = BidExpired
			bidIDs = append(bidIDs, id)
		}
	}
	sort.Strings(listingIDs)
	sort.Strings(bidIDs)
	return listingIDs, bidIDs
}
