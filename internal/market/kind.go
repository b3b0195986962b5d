package market

import "github.com/talgya/star-exchange/internal/item"

// Kind classifies a system market. It drives tax rate, sell margin, and the
// initial supply/demand skew of seeded goods.
type Kind uint8

const (
	KindTrading Kind = iota
	KindIndustrial
	KindMining
	KindAgricultural
	KindHighTech
	KindBlack
	KindMilitary
)

// Kinds lists every market kind in declaration order.
var Kinds = []Kind{
	KindTrading, KindIndustrial, KindMining, KindAgricultural,
	KindHighTech, KindBlack, KindMilitary,
}

func (k Kind) String() string {
	switch k {
	case KindTrading:
		return "Trading"
	case KindIndustrial:
		return "Industrial"
	case KindMining:
		return "Mining"
	case KindAgricultural:
		return "Agricultural"
	case KindHighTech:
		return "HighTech"
	case KindBlack:
		return "Black"
	case KindMilitary:
		return "Military"
	default:
		return "Unknown"
	}
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// TaxRate returns the starting tax rate for a market kind.
func (k Kind) TaxRate() float64 {
	switch k {
	case KindTrading:
		return 0.03
	case KindIndustrial:
		return 0.05
	case KindMining, KindAgricultural:
		return 0.04
	case KindHighTech:
		return 0.06
	case KindBlack:
		return 0.0
	case KindMilitary:
		return 0.08
	default:
		return 0.05
	}
}

// SellMargin is the markdown off current price a market pays for goods it
// already lists.
func (k Kind) SellMargin() float64 {
	switch k {
	case KindBlack:
		return 0.15
	case KindTrading:
		return 0.05
	default:
		return 0.10
	}
}

// UnlistedMargin is the markdown off intrinsic value paid for goods a market
// has never stocked.
const UnlistedMargin = 0.15

// Skew is the starting bias applied to a seeded good.
type Skew struct {
	Supply     float64
	Demand     float64
	Price      float64 // Multiplier on base price
	Volatility float64 // Multiplier on volatility
}

var neutral = Skew{Supply: 1, Demand: 1, Price: 1, Volatility: 1}

// skewTable is keyed by market kind then item kind. Missing entries are neutral.
var skewTable = map[Kind]map[item.Kind]Skew{
	KindMining: {
		item.KindResource:  {Supply: 1.5, Demand: 0.7, Price: 1, Volatility: 1},
		item.KindComponent: {Supply: 0.7, Demand: 1.3, Price: 1, Volatility: 1},
		item.KindFuel:      {Supply: 1.0, Demand: 1.2, Price: 1, Volatility: 1},
	},
	KindIndustrial: {
		item.KindResource:   {Supply: 0.8, Demand: 1.4, Price: 1, Volatility: 1},
		item.KindComponent:  {Supply: 1.4, Demand: 0.8, Price: 1, Volatility: 1},
		item.KindEquipment:  {Supply: 1.2, Demand: 0.9, Price: 1, Volatility: 1},
		item.KindShipModule: {Supply: 1.2, Demand: 0.9, Price: 1, Volatility: 1},
	},
	KindAgricultural: {
		item.KindProduct:   {Supply: 1.4, Demand: 0.8, Price: 1, Volatility: 1},
		item.KindResource:  {Supply: 0.9, Demand: 1.1, Price: 1, Volatility: 1},
		item.KindEquipment: {Supply: 0.7, Demand: 1.3, Price: 1, Volatility: 1},
	},
	KindHighTech: {
		item.KindEquipment:  {Supply: 1.3, Demand: 0.8, Price: 1, Volatility: 1},
		item.KindShipModule: {Supply: 1.3, Demand: 0.8, Price: 1, Volatility: 1},
		item.KindBlueprint:  {Supply: 1.4, Demand: 0.8, Price: 1, Volatility: 1},
		item.KindResource:   {Supply: 0.7, Demand: 1.3, Price: 1, Volatility: 1},
		item.KindComponent:  {Supply: 0.8, Demand: 1.3, Price: 1, Volatility: 1},
	},
	KindMilitary: {
		item.KindEquipment:  {Supply: 0.8, Demand: 1.5, Price: 1, Volatility: 1},
		item.KindShipModule: {Supply: 0.8, Demand: 1.4, Price: 1, Volatility: 1},
		item.KindFuel:       {Supply: 0.7, Demand: 1.5, Price: 1, Volatility: 1},
	},
}

// blackSkew applies to every good in a black market.
var blackSkew = Skew{Supply: 0.8, Demand: 1.2, Price: 1.2, Volatility: 2}

// SkewFor returns the fixed starting skew for a good category in a market kind.
func SkewFor(k Kind, cat item.Category) Skew {
	if k == KindBlack {
		return blackSkew
	}
	if byItem, ok := skewTable[k]; ok {
		if s, ok := byItem[cat.Kind]; ok {
			return s
		}
	}
	return neutral
}
