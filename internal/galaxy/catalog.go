package galaxy

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
)

// Good is a catalogue entry: an item and how markets first stock it.
type Good struct {
	Item       item.Item
	BasePrice  uint32
	Stock      uint32 // Typical starting quantity
	Volatility float64
}

func resource(name string, r item.Resource, value, stock uint32, vol float64) Good {
	return Good{Item: item.New(name, value, 1, item.ResourceCategory(r)), BasePrice: value, Stock: stock, Volatility: vol}
}

func good(name string, k item.Kind, value, weight, stock uint32, vol float64) Good {
	return Good{Item: item.New(name, value, weight, item.Of(k)), BasePrice: value, Stock: stock, Volatility: vol}
}

// Catalog returns every good a generated market may stock.
func Catalog() []Good {
	return []Good{
		resource("Iron Ore", item.ResourceMineral, 40, 800, 0.10),
		resource("Titanium", item.ResourceMineral, 120, 400, 0.15),
		resource("Hydrogen", item.ResourceGas, 25, 1000, 0.10),
		resource("Helium-3", item.ResourceLunar, 300, 150, 0.25),
		resource("Water Ice", item.ResourceIce, 15, 1200, 0.05),
		resource("Plasma", item.ResourceStellar, 450, 80, 0.30),
		resource("Dark Matter", item.ResourceExotic, 2000, 10, 0.50),
		resource("Alloy", item.ResourceRefined, 180, 300, 0.12),
		good("Circuit Board", item.KindComponent, 250, 1, 200, 0.15),
		good("Reactor Coil", item.KindComponent, 600, 3, 60, 0.20),
		good("Rations", item.KindProduct, 20, 1, 1000, 0.08),
		good("Medical Kit", item.KindProduct, 150, 1, 200, 0.12),
		good("Mining Laser", item.KindEquipment, 900, 5, 40, 0.20),
		good("Pulse Rifle", item.KindEquipment, 1200, 4, 30, 0.30),
		good("Shield Module", item.KindShipModule, 3000, 20, 10, 0.25),
		good("Cargo Expander", item.KindShipModule, 1800, 15, 15, 0.20),
		good("Fuel Cell", item.KindFuel, 60, 2, 600, 0.15),
		good("Drive Schematic", item.KindBlueprint, 5000, 0, 5, 0.35),
	}
}

// Lookup finds a catalogue good by item name.
func Lookup(name string) (Good, bool) {
	for _, g := range Catalog() {
		if g.Item.Name == name {
			return g, true
		}
	}
	return Good{}, false
}

// stocks reports whether a market kind carries goods of a kind. Sol and
// trading hubs carry everything.
func stocks(k market.Kind, it item.Kind) bool {
	switch k {
	case market.KindMining:
		return it == item.KindResource || it == item.KindFuel || it == item.KindProduct || it == item.KindEquipment
	case market.KindIndustrial:
		return it != item.KindBlueprint
	case market.KindAgricultural:
		return it == item.KindProduct || it == item.KindResource || it == item.KindFuel
	case market.KindHighTech:
		return it != item.KindProduct
	case market.KindMilitary:
		return it == item.KindEquipment || it == item.KindShipModule || it == item.KindFuel || it == item.KindProduct
	default:
		return true
	}
}

// SeedMarket stocks a system's market from the catalogue. Resource stock
// follows the mineral field and manufactured stock follows industry.
func SeedMarket(m *market.SystemMarket, sys System, rng *rand.Rand) {
	for _, g := range Catalog() {
		if !stocks(m.Kind, g.Item.Category.Kind) {
			continue
		}
		factor := 0.5 + sys.Industry
		if g.Item.Category.Kind == item.KindResource {
			factor = 0.5 + sys.Minerals
		}
		factor *= 0.8 + 0.4*rng.Float64()
		qty := uint32(math.Round(float64(g.Stock) * factor))
		if qty == 0 {
			qty = 1
		}
		m.AddItem(g.Item, qty, g.BasePrice, g.Volatility)
	}
}

// Populate opens a market in every system and stocks it.
func Populate(eco *economy.EconomySystem, systems []System, seed int64) {
	rng := rand.New(rand.NewSource(seed + 300))
	for _, sys := range systems {
		m := eco.InitializeMarket(sys.ID, sys.Kind)
		SeedMarket(m, sys, rng)
	}
	slog.Info("galaxy populated", "systems", len(systems), "kinds", KindCounts(systems))
}
