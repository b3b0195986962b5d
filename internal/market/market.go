// Package market implements a single location's commodity market: a ledger of
// goods with supply/demand-driven prices, standing trade orders, and transient
// local economic events.
package market

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/pricing"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// MaxHistory is the number of price points retained per good.
const MaxHistory = 10

// PricePoint is one timestamped entry in a good's price history.
type PricePoint struct {
	Timestamp uint64 `json:"timestamp"`
	Price     uint32 `json:"price"`
}

// MarketItem is the market's ledger entry for one good.
type MarketItem struct {
	Item            item.Item    `json:"item"`
	Quantity        uint32       `json:"quantity"`
	BasePrice       uint32       `json:"base_price"`
	CurrentPrice    uint32       `json:"current_price"`
	Volatility      float64      `json:"volatility"`   // 0–1
	SupplyLevel     float64      `json:"supply_level"` // 0.3–2.0
	DemandLevel     float64      `json:"demand_level"` // 0.3–2.0
	PriceHistory    []PricePoint `json:"price_history"`
	ProductionRate  uint32       `json:"production_rate"`
	ConsumptionRate uint32       `json:"consumption_rate"`

	// Price at the start of the running tick; every recompute in the tick is
	// bounded against it.
	anchor   uint32
	anchored bool
}

func (mi *MarketItem) recordPrice(now uint64) {
	mi.PriceHistory = append(mi.PriceHistory, PricePoint{Timestamp: now, Price: mi.CurrentPrice})
	if len(mi.PriceHistory) > MaxHistory {
		mi.PriceHistory = append([]PricePoint(nil), mi.PriceHistory[len(mi.PriceHistory)-MaxHistory:]...)
	}
}

// reference is the price a recompute may move at most one step away from.
func (mi *MarketItem) reference() uint32 {
	if mi.anchored {
		return mi.anchor
	}
	return mi.CurrentPrice
}

func (mi *MarketItem) bound(proposed float64) uint32 {
	return pricing.Bound(mi.reference(), proposed)
}

func (mi *MarketItem) reprice(noise float64) {
	mi.CurrentPrice = pricing.NextPrice(mi.BasePrice, mi.SupplyLevel, mi.DemandLevel, mi.Volatility, mi.reference(), noise)
}

// SystemMarket is the commodity market at one location.
type SystemMarket struct {
	LocationID  string                 `json:"location_id"`
	Kind        Kind                   `json:"kind"`
	TaxRate     float64                `json:"tax_rate"`
	Items       map[string]*MarketItem `json:"items"`
	Orders      []*TradeOrder          `json:"orders"`
	LocalEvents []Event                `json:"local_events"`
	LastUpdate  uint64                 `json:"last_update"`

	ticking bool
}

// New creates an empty market of the given kind.
func New(locationID string, kind Kind) *SystemMarket {
	return &SystemMarket{
		LocationID: locationID,
		Kind:       kind,
		TaxRate:    kind.TaxRate(),
		Items:      make(map[string]*MarketItem),
	}
}

// AddItem seeds a good. Starting supply, demand, and price are skewed by the
// market kind and the good's category. Re-adding a good replaces its entry.
func (m *SystemMarket) AddItem(it item.Item, quantity, basePrice uint32, volatility float64) *MarketItem {
	skew := SkewFor(m.Kind, it.Category)

	base := uint32(math.Round(float64(basePrice) * skew.Price))
	if base == 0 {
		base = 1
	}
	vol := pricing.Clamp(volatility*skew.Volatility, 0, 1)
	supply := pricing.ClampLevel(skew.Supply)
	demand := pricing.ClampLevel(skew.Demand)

	current := max(uint32(pricing.RawPrice(base, supply, demand, 0, 0)), pricing.MinPrice)

	cycle := quantity / 20
	if cycle == 0 {
		cycle = 1
	}

	mi := &MarketItem{
		Item:            it,
		Quantity:        quantity,
		BasePrice:       base,
		CurrentPrice:    current,
		Volatility:      vol,
		SupplyLevel:     supply,
		DemandLevel:     demand,
		ProductionRate:  uint32(math.Round(float64(cycle) * skew.Supply)),
		ConsumptionRate: uint32(math.Round(float64(cycle) * skew.Demand)),
	}
	m.Items[it.Name] = mi
	return mi
}

// Item returns the ledger entry for a good.
func (m *SystemMarket) Item(name string) (*MarketItem, bool) {
	mi, ok := m.Items[name]
	return mi, ok
}

// ItemNames returns the stocked goods in name order.
func (m *SystemMarket) ItemNames() []string {
	names := make([]string, 0, len(m.Items))
	for name := range m.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Receipt is the result of a direct trade against the market.
type Receipt struct {
	Item      item.Item `json:"item"`
	Quantity  uint32    `json:"quantity"`
	UnitPrice uint32    `json:"unit_price"` // Price at the time of the trade
	Subtotal  uint64    `json:"subtotal"`
	Tax       uint64    `json:"tax"`
	Total     uint64    `json:"total"` // Cost to a buyer or revenue to a seller
}

// Quote prices a purchase without touching the ledger.
func (m *SystemMarket) Quote(name string, quantity uint32) (Receipt, error) {
	if quantity == 0 {
		return Receipt{}, fmt.Errorf("buy %s: zero quantity: %w", name, tradeerr.ErrInvalidState)
	}
	mi, ok := m.Items[name]
	if !ok {
		return Receipt{}, fmt.Errorf("buy %s at %s: %w", name, m.LocationID, tradeerr.ErrNotFound)
	}
	if quantity > mi.Quantity {
		return Receipt{}, fmt.Errorf("buy %d %s at %s (have %d): %w",
			quantity, name, m.LocationID, mi.Quantity, tradeerr.ErrInsufficientStock)
	}
	subtotal := uint64(quantity) * uint64(mi.CurrentPrice)
	tax := pricing.TaxOn(subtotal, m.TaxRate)
	return Receipt{
		Item:      mi.Item,
		Quantity:  quantity,
		UnitPrice: mi.CurrentPrice,
		Subtotal:  subtotal,
		Tax:       tax,
		Total:     subtotal + tax,
	}, nil
}

// Buy removes goods from the market. The receipt carries the pre-trade price;
// the market then reprices with reduced supply.
func (m *SystemMarket) Buy(name string, quantity uint32, now uint64) (Receipt, error) {
	r, err := m.Quote(name, quantity)
	if err != nil {
		return Receipt{}, err
	}
	mi := m.Items[name]
	mi.Quantity -= quantity
	mi.SupplyLevel = pricing.SupplyAfterPurchase(mi.SupplyLevel, pricing.TradeSupplyFloor)
	mi.reprice(0)
	mi.recordPrice(now)
	return r, nil
}

// SellQuote prices a sale without touching the ledger.
func (m *SystemMarket) SellQuote(it item.Item, quantity uint32) (Receipt, error) {
	if quantity == 0 {
		return Receipt{}, fmt.Errorf("sell %s: zero quantity: %w", it.Name, tradeerr.ErrInvalidState)
	}
	var unit uint32
	if mi, ok := m.Items[it.Name]; ok {
		unit = uint32(float64(mi.CurrentPrice) * (1 - m.Kind.SellMargin()))
	} else {
		unit = uint32(float64(it.Value) * (1 - UnlistedMargin))
	}
	revenue := uint64(unit) * uint64(quantity)
	return Receipt{
		Item:      it,
		Quantity:  quantity,
		UnitPrice: unit,
		Subtotal:  revenue,
		Total:     revenue,
	}, nil
}

// Sell takes goods into the market and returns the revenue owed to the seller.
// Goods the market has never stocked are onboarded at the offered price.
func (m *SystemMarket) Sell(it item.Item, quantity uint32, now uint64) (Receipt, error) {
	r, err := m.SellQuote(it, quantity)
	if err != nil {
		return Receipt{}, err
	}
	mi, ok := m.Items[it.Name]
	if !ok {
		m.AddItem(it, quantity, r.UnitPrice, 0.1)
		return r, nil
	}
	mi.Quantity += quantity
	mi.SupplyLevel = pricing.SupplyAfterSale(mi.SupplyLevel)
	mi.reprice(0)
	mi.recordPrice(now)
	return r, nil
}

// Trend labels a recent price movement.
type Trend string

const (
	TrendSkyrocketing Trend = "Skyrocketing"
	TrendRising       Trend = "Rising"
	TrendIncreasing   Trend = "Increasing"
	TrendStable       Trend = "Stable"
	TrendDecreasing   Trend = "Decreasing"
	TrendFalling      Trend = "Falling"
	TrendPlummeting   Trend = "Plummeting"
)

// LabelChange maps a percent change to its trend label.
func LabelChange(pct float64) Trend {
	switch {
	case pct > 10:
		return TrendSkyrocketing
	case pct > 5:
		return TrendRising
	case pct > 1:
		return TrendIncreasing
	case pct < -10:
		return TrendPlummeting
	case pct < -5:
		return TrendFalling
	case pct < -1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// PriceTrend compares the last two history points for a good.
func (m *SystemMarket) PriceTrend(name string) (float64, Trend, error) {
	mi, ok := m.Items[name]
	if !ok {
		return 0, TrendStable, fmt.Errorf("trend %s at %s: %w", name, m.LocationID, tradeerr.ErrNotFound)
	}
	h := mi.PriceHistory
	if len(h) < 2 || h[len(h)-2].Price == 0 {
		return 0, TrendStable, nil
	}
	prev, last := float64(h[len(h)-2].Price), float64(h[len(h)-1].Price)
	pct := (last - prev) / prev * 100
	return pct, LabelChange(pct), nil
}
