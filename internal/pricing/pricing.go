// Package pricing turns supply and demand pressure into bounded prices.
// Every price recompute in the engine goes through NextPrice so the per-step
// ±20% bound holds everywhere: purchases, sales, ticks, and events.
package pricing

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Supply and demand levels are dimensionless multipliers; 1.0 is normal.
const (
	MinLevel = 0.3
	MaxLevel = 2.0

	// MaxStep is the largest fractional price move allowed in one recompute.
	MaxStep = 0.2

	// MinPrice is the lowest price a priced good falls to. Below 5 a 20% step
	// is less than one credit, so an integer price there could never move.
	MinPrice = 5

	// TradeSupplyFloor is the floor applied when a direct purchase depresses supply.
	TradeSupplyFloor = 0.5
	// TickSupplyFloor is the floor applied by bulk simulation in the tick path.
	TickSupplyFloor = MinLevel
)

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampLevel keeps a supply or demand level inside its band.
func ClampLevel(v float64) float64 {
	if math.IsNaN(v) {
		return 1.0
	}
	return Clamp(v, MinLevel, MaxLevel)
}

// Bound clamps a proposed price to within MaxStep of current. The band rounds
// inward (lower edge up, upper edge down) so integer prices never exceed the
// step. A price at or above MinPrice never falls below it; one already below
// MinPrice cannot move. An unpriced good (current == 0) takes the proposal
// as-is.
func Bound(current uint32, proposed float64) uint32 {
	if proposed < 0 || math.IsNaN(proposed) {
		proposed = 0
	}
	if current == 0 {
		return uint32(math.Min(proposed, math.MaxUint32))
	}
	c := float64(current)
	lo := math.Ceil(c * (1 - MaxStep))
	if current >= MinPrice {
		lo = math.Max(lo, MinPrice)
	}
	hi := math.Min(math.Floor(c*(1+MaxStep)), math.MaxUint32)
	return uint32(Clamp(proposed, lo, hi))
}

// RawPrice is the unbounded price implied by supply and demand:
// base × (2 − supply) × demand × (1 + volatility·noise).
// Scarcity (low supply) raises price. noise is expected in [-0.5, 0.5].
func RawPrice(base uint32, supply, demand, volatility, noise float64) float64 {
	supplyFactor := 2.0 - ClampLevel(supply)
	random := 1.0 + volatility*noise
	return float64(base) * supplyFactor * ClampLevel(demand) * random
}

// NextPrice recomputes a price and bounds it against current.
// Pass noise == 0 on the immediate-trade path.
func NextPrice(base uint32, supply, demand, volatility float64, current uint32, noise float64) uint32 {
	return Bound(current, RawPrice(base, supply, demand, volatility, noise))
}

// SupplyAfterProduction nudges supply up after new stock arrives.
func SupplyAfterProduction(level float64) float64 {
	return ClampLevel(level * 1.01)
}

// SupplyAfterSale raises supply after goods are sold into a market.
func SupplyAfterSale(level float64) float64 {
	return ClampLevel(level * 1.02)
}

// SupplyAfterPurchase depresses supply after goods leave a market. floor is
// TradeSupplyFloor for direct trades and TickSupplyFloor for simulation.
func SupplyAfterPurchase(level, floor float64) float64 {
	return ClampLevel(math.Max(level*0.98, floor))
}

// DemandAfterConsumption decays demand when consumption was fully met and
// raises it when the market ran short.
func DemandAfterConsumption(level float64, satisfied bool) float64 {
	if satisfied {
		return ClampLevel(level * 0.99)
	}
	return ClampLevel(level * 1.01)
}

// NudgeSupply applies a small random drift scaled by volatility.
func NudgeSupply(level, volatility, noise float64) float64 {
	return ClampLevel(level * (1 + volatility*noise*0.1))
}

// SupplyFromStock derives a supply level from how many production cycles of
// stock are on hand. Used when goods are moved between markets.
func SupplyFromStock(quantity, productionRate uint32) float64 {
	switch {
	case quantity == 0:
		return MinLevel
	case quantity < productionRate*2:
		return 0.5
	case quantity > productionRate*10:
		return 1.5
	default:
		return 1.0
	}
}

// TaxOn returns round(subtotal × rate).
func TaxOn(subtotal uint64, rate float64) uint64 {
	return uint64(math.Round(float64(subtotal) * rate))
}
