package market

import (
	"fmt"

	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/pricing"
)

const (
	// localEventChance is the per-update chance a market spawns its own event.
	localEventChance = 0.05
	// eventSurvival is the chance a local event outlives an update.
	eventSurvival = 0.8
	// orderRetention is how long finished orders stay queryable (seconds).
	orderRetention = 7 * 24 * 3600
)

// Fill describes a triggered order about to execute at the current price.
type Fill struct {
	Order     TradeOrder
	Item      item.Item
	UnitPrice uint32
	Subtotal  uint64
	Tax       uint64 // Charged on buys only
	Total     uint64 // Owed by a buyer or paid to a seller
}

// Settler applies the player side of a triggered order: debiting credits and
// delivering goods for a buy, collecting goods and paying out for a sell.
// Returning an error fails the order and leaves the market untouched.
type Settler interface {
	SettleOrder(f Fill) error
}

// UpdateReport summarises what one market update did.
type UpdateReport struct {
	LocationID string       `json:"location_id"`
	Executed   []TradeOrder `json:"executed"`
	Failed     []TradeOrder `json:"failed"`
	Cancelled  []TradeOrder `json:"cancelled"`
	Applied    []Event      `json:"applied"`
	Spawned    []Event      `json:"spawned"`
}

// BeginTick pins every good's current price. Until EndTick, event shocks and
// recomputes stay within one step of the pinned price however many land.
func (m *SystemMarket) BeginTick() {
	m.ticking = true
	for _, mi := range m.Items {
		mi.anchor = mi.CurrentPrice
		mi.anchored = true
	}
}

// EndTick releases the prices pinned by BeginTick.
func (m *SystemMarket) EndTick() {
	m.ticking = false
	for _, mi := range m.Items {
		mi.anchored = false
	}
}

// Update advances the market one tick: queued events, production and
// consumption, repricing, trade order execution, and event churn. It runs
// inside the caller's BeginTick/EndTick window, or opens its own.
func (m *SystemMarket) Update(now uint64, rng entropy.Source, settler Settler) UpdateReport {
	if !m.ticking {
		m.BeginTick()
		defer m.EndTick()
	}
	report := UpdateReport{LocationID: m.LocationID}
	m.LastUpdate = now

	for i := range m.LocalEvents {
		if m.LocalEvents[i].Applied {
			continue
		}
		m.ApplyEvent(m.LocalEvents[i])
		m.LocalEvents[i].Applied = true
		report.Applied = append(report.Applied, m.LocalEvents[i])
	}

	for _, name := range m.ItemNames() {
		m.simulateItem(m.Items[name], now, rng)
	}

	m.processOrders(now, settler, &report)

	if entropy.Chance(rng, localEventChance) {
		if e, ok := m.randomEvent(rng); ok {
			m.QueueEvent(e)
			report.Spawned = append(report.Spawned, e)
		}
	}

	kept := m.LocalEvents[:0]
	for _, e := range m.LocalEvents {
		if !e.Applied || entropy.Chance(rng, eventSurvival) {
			kept = append(kept, e)
		}
	}
	m.LocalEvents = kept

	return report
}

func (m *SystemMarket) simulateItem(mi *MarketItem, now uint64, rng entropy.Source) {
	if mi.ProductionRate > 0 {
		mi.Quantity += mi.ProductionRate
		mi.SupplyLevel = pricing.SupplyAfterProduction(mi.SupplyLevel)
	}

	consumed := mi.ConsumptionRate
	if consumed > mi.Quantity {
		consumed = mi.Quantity
	}
	mi.Quantity -= consumed
	satisfied := consumed == mi.ConsumptionRate
	mi.DemandLevel = pricing.DemandAfterConsumption(mi.DemandLevel, satisfied)
	if !satisfied {
		mi.SupplyLevel = pricing.SupplyAfterPurchase(mi.SupplyLevel, pricing.TickSupplyFloor)
	}

	mi.SupplyLevel = pricing.NudgeSupply(mi.SupplyLevel, mi.Volatility, entropy.Noise(rng))
	mi.reprice(entropy.Noise(rng))
	mi.recordPrice(now)
}

func (m *SystemMarket) fillFor(o *TradeOrder, mi *MarketItem) Fill {
	subtotal := uint64(o.Quantity) * uint64(mi.CurrentPrice)
	f := Fill{Order: *o, Item: mi.Item, UnitPrice: mi.CurrentPrice, Subtotal: subtotal}
	if o.Side == SideBuy {
		f.Tax = pricing.TaxOn(subtotal, m.TaxRate)
		f.Total = subtotal + f.Tax
	} else {
		f.Total = uint64(float64(subtotal) * (1 - m.Kind.SellMargin()))
	}
	return f
}

// processOrders fires triggered orders exactly once. A buy waits while the
// market lacks stock; a settlement failure fails the order.
func (m *SystemMarket) processOrders(now uint64, settler Settler, report *UpdateReport) {
	kept := m.Orders[:0]
	for _, o := range m.Orders {
		if o.Status != OrderActive {
			if finishedAt(o)+orderRetention >= now {
				kept = append(kept, o)
			}
			continue
		}
		kept = append(kept, o)

		if o.Expired(now) {
			o.Status = OrderCancelled
			report.Cancelled = append(report.Cancelled, *o)
			continue
		}

		mi, ok := m.Items[o.ItemName]
		if !ok || !o.Triggered(mi.CurrentPrice) {
			continue
		}
		if o.Side == SideBuy && mi.Quantity < o.Quantity {
			continue
		}

		fill := m.fillFor(o, mi)
		if settler != nil {
			if err := settler.SettleOrder(fill); err != nil {
				o.Status = OrderFailed
				o.Notes = fmt.Sprintf("%s (failed: %v)", o.Notes, err)
				report.Failed = append(report.Failed, *o)
				continue
			}
		}

		switch o.Side {
		case SideBuy:
			mi.Quantity -= o.Quantity
			mi.SupplyLevel = pricing.SupplyAfterPurchase(mi.SupplyLevel, pricing.TickSupplyFloor)
		case SideSell:
			mi.Quantity += o.Quantity
			mi.SupplyLevel = pricing.SupplyAfterSale(mi.SupplyLevel)
		}
		executed := now
		o.Status = OrderCompleted
		o.ExecutedAt = &executed
		o.ExecutedPrice = mi.CurrentPrice
		report.Executed = append(report.Executed, *o)
	}
	m.Orders = kept
}

func finishedAt(o *TradeOrder) uint64 {
	if o.ExecutedAt != nil {
		return *o.ExecutedAt
	}
	if o.ExpiresAt != nil {
		return *o.ExpiresAt
	}
	return o.CreatedAt
}

// randomEvent synthesises one event. Item-scoped kinds need a stocked good.
func (m *SystemMarket) randomEvent(rng entropy.Source) (Event, bool) {
	kind := EventKinds[rng.Intn(len(EventKinds))]
	if !kind.ItemScoped() {
		return Global(kind), true
	}
	names := m.ItemNames()
	if len(names) == 0 {
		return Event{}, false
	}
	return Event{Kind: kind, ItemName: names[rng.Intn(len(names))]}, true
}
