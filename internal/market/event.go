package market

import (
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/pricing"
)

// EventKind enumerates the closed set of economic events.
type EventKind uint8

const (
	EventShortage EventKind = iota
	EventSurplus
	EventHighDemand
	EventLowDemand
	EventTariffIncrease
	EventTariffDecrease
	EventMarketCrash
	EventMarketBoom
	EventLocalConflict
	EventLocalPeace
)

// EventKinds lists every event kind in declaration order.
var EventKinds = []EventKind{
	EventShortage, EventSurplus, EventHighDemand, EventLowDemand,
	EventTariffIncrease, EventTariffDecrease, EventMarketCrash, EventMarketBoom,
	EventLocalConflict, EventLocalPeace,
}

func (k EventKind) String() string {
	switch k {
	case EventShortage:
		return "Shortage"
	case EventSurplus:
		return "Surplus"
	case EventHighDemand:
		return "HighDemand"
	case EventLowDemand:
		return "LowDemand"
	case EventTariffIncrease:
		return "TariffIncrease"
	case EventTariffDecrease:
		return "TariffDecrease"
	case EventMarketCrash:
		return "MarketCrash"
	case EventMarketBoom:
		return "MarketBoom"
	case EventLocalConflict:
		return "LocalConflict"
	case EventLocalPeace:
		return "LocalPeace"
	default:
		return "Unknown"
	}
}

// ItemScoped reports whether the event targets a single good.
func (k EventKind) ItemScoped() bool {
	switch k {
	case EventShortage, EventSurplus, EventHighDemand, EventLowDemand:
		return true
	default:
		return false
	}
}

// Event is a transient economic event. ItemName is set only for item-scoped kinds.
// Applied flips once the effect has landed so a lingering event never
// compounds; it stays listed until it decays.
type Event struct {
	Kind     EventKind `json:"kind"`
	ItemName string    `json:"item_name,omitempty"`
	Applied  bool      `json:"applied"`
}

// Shortage and friends build item-scoped events.
func Shortage(name string) Event   { return Event{Kind: EventShortage, ItemName: name} }
func Surplus(name string) Event    { return Event{Kind: EventSurplus, ItemName: name} }
func HighDemand(name string) Event { return Event{Kind: EventHighDemand, ItemName: name} }
func LowDemand(name string) Event  { return Event{Kind: EventLowDemand, ItemName: name} }

// Global builds an event that is not tied to one good.
func Global(k EventKind) Event { return Event{Kind: k} }

func (e Event) String() string {
	if e.ItemName != "" {
		return e.Kind.String() + "(" + e.ItemName + ")"
	}
	return e.Kind.String()
}

// Tax bounds for tariff events.
const (
	MaxTaxRate = 0.2
	MinTaxRate = 0.01
)

// conflictDemand is the demand multiplier by item kind during a local conflict.
// Peace uses the reciprocal skew.
var conflictDemand = map[item.Kind]float64{
	item.KindEquipment:  1.3,
	item.KindShipModule: 1.3,
	item.KindFuel:       1.2,
	item.KindProduct:    0.9,
}

var peaceDemand = map[item.Kind]float64{
	item.KindEquipment:  0.8,
	item.KindShipModule: 0.8,
	item.KindFuel:       0.9,
	item.KindProduct:    1.1,
	item.KindComponent:  1.1,
}

// ApplyEvent lands an event's effect on the market. Price shocks are bounded
// against the tick's pinned price, or the current price outside a tick.
func (m *SystemMarket) ApplyEvent(e Event) {
	switch e.Kind {
	case EventShortage:
		if mi, ok := m.Items[e.ItemName]; ok {
			mi.SupplyLevel = pricing.ClampLevel(mi.SupplyLevel * 0.5)
		}
	case EventSurplus:
		if mi, ok := m.Items[e.ItemName]; ok {
			mi.SupplyLevel = pricing.ClampLevel(mi.SupplyLevel * 1.5)
		}
	case EventHighDemand:
		if mi, ok := m.Items[e.ItemName]; ok {
			mi.DemandLevel = pricing.ClampLevel(mi.DemandLevel * 1.5)
		}
	case EventLowDemand:
		if mi, ok := m.Items[e.ItemName]; ok {
			mi.DemandLevel = pricing.ClampLevel(mi.DemandLevel * 0.5)
		}
	case EventTariffIncrease:
		m.TaxRate = pricing.Clamp(m.TaxRate*1.2, 0, MaxTaxRate)
	case EventTariffDecrease:
		m.TaxRate = pricing.Clamp(m.TaxRate*0.8, MinTaxRate, MaxTaxRate)
	case EventMarketCrash:
		for _, mi := range m.Items {
			mi.CurrentPrice = mi.bound(float64(mi.CurrentPrice) * 0.7)
			mi.DemandLevel = pricing.ClampLevel(mi.DemandLevel * 0.6)
		}
	case EventMarketBoom:
		for _, mi := range m.Items {
			mi.CurrentPrice = mi.bound(float64(mi.CurrentPrice) * 1.3)
			mi.DemandLevel = pricing.ClampLevel(mi.DemandLevel * 1.4)
		}
	case EventLocalConflict:
		m.skewDemand(conflictDemand)
	case EventLocalPeace:
		m.skewDemand(peaceDemand)
	}
}

func (m *SystemMarket) skewDemand(byKind map[item.Kind]float64) {
	for _, mi := range m.Items {
		if f, ok := byKind[mi.Item.Category.Kind]; ok {
			mi.DemandLevel = pricing.ClampLevel(mi.DemandLevel * f)
		}
	}
}

// QueueEvent adds a local event to be applied on the next update.
func (m *SystemMarket) QueueEvent(e Event) {
	e.Applied = false
	m.LocalEvents = append(m.LocalEvents, e)
}
