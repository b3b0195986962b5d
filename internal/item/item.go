// Package item provides the immutable trade-good descriptor shared by every market.
package item

import "strings"

// Kind is the broad classification of a tradable good.
type Kind uint8

const (
	KindResource Kind = iota
	KindComponent
	KindProduct
	KindBlueprint
	KindEquipment
	KindShipModule
	KindFuel
)

// Resource narrows KindResource goods to their origin.
type Resource uint8

const (
	ResourceNone    Resource = iota
	ResourceMineral          // Asteroid fields
	ResourceGas              // Gas fields
	ResourceIce              // Ice fields
	ResourceLunar            // Moon residues
	ResourceStellar          // Star coronas
	ResourceExotic           // Accretion disks
	ResourceRefined          // Processed resources
)

// Resources lists every concrete resource type in declaration order.
var Resources = []Resource{
	ResourceMineral, ResourceGas, ResourceIce, ResourceLunar,
	ResourceStellar, ResourceExotic, ResourceRefined,
}

// Category identifies what an item is. Resource is only set for KindResource.
type Category struct {
	Kind     Kind     `json:"kind"`
	Resource Resource `json:"resource,omitempty"`
}

// ResourceCategory returns the category for a raw resource of the given type.
func ResourceCategory(r Resource) Category {
	return Category{Kind: KindResource, Resource: r}
}

// Of returns a non-resource category.
func Of(k Kind) Category {
	return Category{Kind: k}
}

// Item is an immutable descriptor of a tradable good. Two items with the same
// name are the same good within a market.
type Item struct {
	Name     string   `json:"name"`
	Value    uint32   `json:"value"`  // Intrinsic value in credits
	Weight   uint32   `json:"weight"` // Cargo units per item
	Category Category `json:"category"`
}

// New creates an item descriptor.
func New(name string, value, weight uint32, cat Category) Item {
	return Item{Name: name, Value: value, Weight: weight, Category: cat}
}

// KindName returns a human-readable name for a kind.
func KindName(k Kind) string {
	switch k {
	case KindResource:
		return "Resource"
	case KindComponent:
		return "Component"
	case KindProduct:
		return "Product"
	case KindBlueprint:
		return "Blueprint"
	case KindEquipment:
		return "Equipment"
	case KindShipModule:
		return "ShipModule"
	case KindFuel:
		return "Fuel"
	default:
		return "Unknown"
	}
}

// ResourceName returns a human-readable name for a resource type.
func ResourceName(r Resource) string {
	switch r {
	case ResourceMineral:
		return "Mineral"
	case ResourceGas:
		return "Gas"
	case ResourceIce:
		return "Ice"
	case ResourceLunar:
		return "Lunar"
	case ResourceStellar:
		return "Stellar"
	case ResourceExotic:
		return "Exotic"
	case ResourceRefined:
		return "Refined"
	default:
		return ""
	}
}

// String renders a category as "Resource/Mineral" or "Component".
func (c Category) String() string {
	if c.Kind == KindResource && c.Resource != ResourceNone {
		return KindName(c.Kind) + "/" + ResourceName(c.Resource)
	}
	return KindName(c.Kind)
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, bool) {
	kindPart, resPart, _ := strings.Cut(s, "/")
	for k := KindResource; k <= KindFuel; k++ {
		if KindName(k) != kindPart {
			continue
		}
		if resPart == "" {
			return Category{Kind: k}, true
		}
		if k != KindResource {
			return Category{}, false
		}
		for _, r := range Resources {
			if ResourceName(r) == resPart {
				return ResourceCategory(r), true
			}
		}
		return Category{}, false
	}
	return Category{}, false
}

// Includes reports whether o falls under c. A bare Resource category covers
// every resource type.
func (c Category) Includes(o Category) bool {
	return c.Kind == o.Kind && (c.Resource == ResourceNone || c.Resource == o.Resource)
}
