package economy

import (
	"log/slog"
	"sort"

	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/pricing"
)

// TradeFlow is goods moved between two markets by background traders.
type TradeFlow struct {
	From     string `json:"from"`
	To       string `json:"to"`
	ItemName string `json:"item_name"`
	Quantity uint32 `json:"quantity"`
}

// TickReport is everything one economy tick did that a collaborator may need
// to broadcast.
type TickReport struct {
	Step             uint64                         `json:"step"`
	Time             uint64                         `json:"time"`
	Markets          map[string]market.UpdateReport `json:"markets"`
	GlobalEvents     []market.Event                 `json:"global_events"`
	LocalEvent       *LocalEvent                    `json:"local_event,omitempty"`
	Flows            []TradeFlow                    `json:"flows"`
	ExpiredListings  []string                       `json:"expired_listings"`
	ExpiredBids      []string                       `json:"expired_bids"`
	ExpiredContracts []string                       `json:"expired_contracts"`
}

// LocalEvent is the event injected into one market this tick.
type LocalEvent struct {
	LocationID string       `json:"location_id"`
	Event      market.Event `json:"event"`
}

// MarketIDs returns the updated locations in order.
func (r TickReport) MarketIDs() []string {
	return sortedKeys(r.Markets)
}

// Executed returns every order filled this tick across all markets.
func (r TickReport) Executed() []market.TradeOrder {
	var out []market.TradeOrder
	for _, id := range r.MarketIDs() {
		out = append(out, r.Markets[id].Executed...)
	}
	return out
}

// Update advances the economy if at least one interval has passed since the
// last tick. It reports false when nothing ran.
func (e *EconomySystem) Update(now uint64) (TickReport, bool) {
	if now < e.LastUpdate || now-e.LastUpdate < e.UpdateInterval {
		return TickReport{}, false
	}
	e.Step++
	e.LastUpdate = now
	report := TickReport{Step: e.Step, Time: now, Markets: make(map[string]market.UpdateReport, len(e.Markets))}

	e.updateGlobalFactors()

	var settler market.Settler
	if e.Accounts != nil {
		settler = orderSettler{e}
	}
	// Market updates and global shocks share one price window per market.
	for _, id := range e.MarketIDs() {
		e.Markets[id].BeginTick()
	}
	for _, id := range e.MarketIDs() {
		report.Markets[id] = e.Markets[id].Update(now, e.rng, settler)
	}
	report.GlobalEvents = e.applyGlobalEvents()
	for _, id := range e.MarketIDs() {
		e.Markets[id].EndTick()
	}

	report.LocalEvent = e.injectLocalEvent()
	report.Flows = e.simulateTradeFlows()
	report.ExpiredListings, report.ExpiredBids = e.expirePlayerMarket(now)
	report.ExpiredContracts = e.Player.ExpireContracts(now)
	for _, id := range report.ExpiredContracts {
		e.refundContract(id)
	}
	e.adjustResourceScarcity()

	executed := report.Executed()
	for _, o := range executed {
		slog.Debug("trade order executed",
			"order", o.ID, "owner", o.OwnerID, "location", o.LocationID,
			"side", o.Side, "item", o.ItemName, "quantity", o.Quantity, "price", o.ExecutedPrice)
	}
	slog.Info("economy tick",
		"step", e.Step,
		"markets", len(e.Markets),
		"orders_executed", len(executed),
		"global_events", len(report.GlobalEvents),
		"flows", len(report.Flows),
		"trade_index", e.TradeIndex,
		"inflation", e.InflationRate,
	)
	return report, true
}

func (e *EconomySystem) updateGlobalFactors() {
	e.TradeIndex = pricing.Clamp(e.TradeIndex+entropy.Noise(e.rng)*0.1, 0.5, 1.5)
	if e.cfg.InflationEvery > 0 && e.Step%e.cfg.InflationEvery == 0 {
		e.InflationRate = pricing.Clamp(e.InflationRate+entropy.Noise(e.rng)*0.01, 0, 0.1)
	}
}

// applyGlobalEvents rolls each global event independently and lands the hits
// on every market immediately.
func (e *EconomySystem) applyGlobalEvents() []market.Event {
	var fired []market.Event
	for _, we := range e.GlobalEvents {
		if !entropy.Chance(e.rng, we.Probability) {
			continue
		}
		ev := market.Global(we.Kind)
		for _, id := range e.MarketIDs() {
			e.Markets[id].ApplyEvent(ev)
		}
		fired = append(fired, ev)
		slog.Info("global economic event", "event", ev.String())
	}
	return fired
}

// injectLocalEvent queues one shortage, surplus, conflict, or peace in a
// random market. Item-scoped events pick a random stocked good.
func (e *EconomySystem) injectLocalEvent() *LocalEvent {
	ids := e.MarketIDs()
	if len(ids) == 0 {
		return nil
	}
	m := e.Markets[ids[e.rng.Intn(len(ids))]]

	var ev market.Event
	switch e.rng.Intn(4) {
	case 0, 1:
		names := m.ItemNames()
		if len(names) == 0 {
			return nil
		}
		name := names[e.rng.Intn(len(names))]
		if ev = market.Shortage(name); e.rng.Intn(2) == 1 {
			ev = market.Surplus(name)
		}
	case 2:
		ev = market.Global(market.EventLocalConflict)
	default:
		ev = market.Global(market.EventLocalPeace)
	}
	m.QueueEvent(ev)
	return &LocalEvent{LocationID: m.LocationID, Event: ev}
}

type flowSource struct {
	location string
	item     string
}

// simulateTradeFlows moves a share of stock from up to MaxTradeFlows random
// (market, good) pairs to a market with lower supply or none at all.
func (e *EconomySystem) simulateTradeFlows() []TradeFlow {
	ids := e.MarketIDs()
	if len(ids) < 2 {
		return nil
	}
	var pairs []flowSource
	for _, id := range ids {
		for _, name := range e.Markets[id].ItemNames() {
			pairs = append(pairs, flowSource{id, name})
		}
	}
	// Partial Fisher-Yates: only the first MaxTradeFlows slots matter.
	n := min(e.cfg.MaxTradeFlows, len(pairs))
	for i := 0; i < n; i++ {
		j := i + e.rng.Intn(len(pairs)-i)
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}

	var flows []TradeFlow
	for _, p := range pairs[:n] {
		src := e.Markets[p.location].Items[p.item]
		var dests []string
		for _, id := range ids {
			if id == p.location {
				continue
			}
			if d, ok := e.Markets[id].Items[p.item]; !ok || d.SupplyLevel < src.SupplyLevel {
				dests = append(dests, id)
			}
		}
		if len(dests) == 0 {
			continue
		}
		amount := uint32(float64(src.Quantity) * e.cfg.TradeFlowShare)
		if amount == 0 {
			continue
		}
		dest := dests[e.rng.Intn(len(dests))]

		src.Quantity -= amount
		src.SupplyLevel = pricing.SupplyFromStock(src.Quantity, src.ProductionRate)

		dm := e.Markets[dest]
		d, ok := dm.Items[p.item]
		if !ok {
			clone := *src
			clone.Quantity = 0
			clone.PriceHistory = nil
			d = &clone
			dm.Items[p.item] = d
		}
		d.Quantity += amount
		d.SupplyLevel = pricing.SupplyFromStock(d.Quantity, d.ProductionRate)

		flows = append(flows, TradeFlow{From: p.location, To: dest, ItemName: p.item, Quantity: amount})
	}
	return flows
}

// expirePlayerMarket sweeps the exchange and returns escrowed goods from
// expired listings to their sellers.
func (e *EconomySystem) expirePlayerMarket(now uint64) (listingIDs, bidIDs []string) {
	var lapsing []listingEscrow
	for _, l := range e.Player.Listings {
		if l.ExpiresAt != nil && now > *l.ExpiresAt {
			lapsing = append(lapsing, listingEscrow{seller: l.SellerID, item: l.Item, quantity: l.Quantity})
		}
	}
	listingIDs, bidIDs = e.Player.ProcessExpirations(now)

	if e.Accounts == nil {
		return listingIDs, bidIDs
	}
	for _, esc := range lapsing {
		w, ok := e.Accounts.Account(esc.seller)
		if !ok {
			continue
		}
		if err := w.Store(esc.item, esc.quantity); err != nil {
			slog.Warn("unsold goods lost on listing expiry",
				"seller", esc.seller, "item", esc.item.Name, "quantity", esc.quantity, "error", err)
		}
	}
	return listingIDs, bidIDs
}

type listingEscrow struct {
	seller   string
	item     item.Item
	quantity uint32
}

func (e *EconomySystem) adjustResourceScarcity() {
	for _, r := range item.Resources {
		if s, ok := e.ResourceScarcity[r]; ok {
			e.ResourceScarcity[r] = pricing.Clamp(s+entropy.Noise(e.rng)*0.1, 0.5, 2.0)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
