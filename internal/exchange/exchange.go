// Package exchange is the player-to-player marketplace: fixed-price listings,
// negotiated bids, delivery contracts, and hourly price rollups.
package exchange

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/pricing"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// DefaultMarketFee is the share of each sale withheld from the seller.
const DefaultMarketFee = 0.05

// Scope says who may see a listing.
type Scope uint8

const (
	ScopePublic Scope = iota
	ScopeFaction
	ScopePlayers
)

func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "public"
	case ScopeFaction:
		return "faction"
	case ScopePlayers:
		return "players"
	default:
		return "unknown"
	}
}

// Visibility restricts a listing to everyone, one faction, or named players.
type Visibility struct {
	Scope   Scope    `json:"scope"`
	Faction string   `json:"faction,omitempty"`
	Players []string `json:"players,omitempty"`
}

func Public() Visibility { return Visibility{Scope: ScopePublic} }

func FactionOnly(f string) Visibility { return Visibility{Scope: ScopeFaction, Faction: f} }

func PlayerList(ids ...string) Visibility { return Visibility{Scope: ScopePlayers, Players: ids} }

// Visible reports whether a player in faction may see the listing.
func (v Visibility) Visible(playerID, faction string) bool {
	switch v.Scope {
	case ScopePublic:
		return true
	case ScopeFaction:
		return faction != "" && faction == v.Faction
	case ScopePlayers:
		return slices.Contains(v.Players, playerID)
	default:
		return false
	}
}

// Listing is a player's fixed-price sale offer. A listing exists only while it
// has stock; selling the last unit removes it.
type Listing struct {
	ID            string     `json:"id"`
	SellerID      string     `json:"seller_id"`
	SellerName    string     `json:"seller_name"`
	Item          item.Item  `json:"item"`
	Quantity      uint32     `json:"quantity"`
	PricePerUnit  uint32     `json:"price_per_unit"`
	LocationID    string     `json:"location_id"`
	CreatedAt     uint64     `json:"created_at"`
	ExpiresAt     *uint64    `json:"expires_at,omitempty"`
	MinReputation int32      `json:"min_reputation"`
	Visibility    Visibility `json:"visibility"`
	Negotiable    bool       `json:"negotiable"`
	Description   string     `json:"description,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	QuantitySold  uint32     `json:"quantity_sold"`
}

// Purchase is an immutable receipt for a completed listing sale.
type Purchase struct {
	ID            string `json:"id"`
	ListingID     string `json:"listing_id"`
	BuyerID       string `json:"buyer_id"`
	SellerID      string `json:"seller_id"`
	ItemName      string `json:"item_name"`
	Quantity      uint32 `json:"quantity"`
	PricePerUnit  uint32 `json:"price_per_unit"`
	TotalPrice    uint64 `json:"total_price"`
	Fee           uint64 `json:"fee"` // Withheld from the seller's proceeds
	Timestamp     uint64 `json:"timestamp"`
	LocationID    string `json:"location_id"`
	WasNegotiated bool   `json:"was_negotiated"`
}

// SellerProceeds is what the seller receives after the market fee.
func (p Purchase) SellerProceeds() uint64 {
	return p.TotalPrice - p.Fee
}

// PlayerMarket holds every listing, bid, contract, and sale between players.
type PlayerMarket struct {
	Listings               map[string]*Listing     `json:"listings"`
	Bids                   map[string]*Bid         `json:"bids"`
	Purchases              []Purchase              `json:"purchases"`
	Contracts              map[string]*Contract    `json:"contracts"`
	MarketFee              float64                 `json:"market_fee"`
	Trends                 map[string][]PriceTrend `json:"trends"`
	ReputationRequirements bool                    `json:"reputation_requirements"`
}

// New returns an empty marketplace with the default fee and reputation checks on.
func New() *PlayerMarket {
	return &PlayerMarket{
		Listings:               make(map[string]*Listing),
		Bids:                   make(map[string]*Bid),
		Contracts:              make(map[string]*Contract),
		Trends:                 make(map[string][]PriceTrend),
		MarketFee:              DefaultMarketFee,
		ReputationRequirements: true,
	}
}

// ListingRequest describes a new listing. TTL is in seconds; zero never expires.
type ListingRequest struct {
	SellerID      string
	SellerName    string
	Item          item.Item
	Quantity      uint32
	PricePerUnit  uint32
	LocationID    string
	TTL           uint64
	MinReputation int32
	Visibility    Visibility
	Negotiable    bool
	Description   string
	Tags          []string
}

// CreateListing posts a listing and returns its id.
func (pm *PlayerMarket) CreateListing(req ListingRequest, now uint64) (string, error) {
	if req.Quantity == 0 {
		return "", fmt.Errorf("list %s: zero quantity: %w", req.Item.Name, tradeerr.ErrInvalidState)
	}
	l := &Listing{
		ID:            uuid.NewString(),
		SellerID:      req.SellerID,
		SellerName:    req.SellerName,
		Item:          req.Item,
		Quantity:      req.Quantity,
		PricePerUnit:  req.PricePerUnit,
		LocationID:    req.LocationID,
		CreatedAt:     now,
		ExpiresAt:     expiry(now, req.TTL),
		MinReputation: req.MinReputation,
		Visibility:    req.Visibility,
		Negotiable:    req.Negotiable,
		Description:   req.Description,
		Tags:          req.Tags,
	}
	pm.Listings[l.ID] = l
	return l.ID, nil
}

// Listing returns a copy of a live listing.
func (pm *PlayerMarket) Listing(id string) (Listing, bool) {
	l, ok := pm.Listings[id]
	if !ok {
		return Listing{}, false
	}
	return *l, true
}

// SortOrder selects how search results are ordered.
type SortOrder uint8

const (
	SortPriceAsc SortOrder = iota
	SortPriceDesc
	SortNewest
	SortOldest
	SortQuantityAsc
	SortQuantityDesc
)

var sortNames = map[string]SortOrder{
	"price_asc":     SortPriceAsc,
	"price_desc":    SortPriceDesc,
	"newest":        SortNewest,
	"oldest":        SortOldest,
	"quantity_asc":  SortQuantityAsc,
	"quantity_desc": SortQuantityDesc,
}

// ParseSortOrder maps a query-string value to a SortOrder.
func ParseSortOrder(s string) (SortOrder, bool) {
	o, ok := sortNames[s]
	return o, ok
}

// SearchQuery filters listings. Zero-valued fields do not filter.
type SearchQuery struct {
	PlayerID   string
	Faction    string
	Name       string // Substring match
	Category   *item.Category
	LocationID string
	Tags       []string // Matches listings carrying any of these
	MinPrice   uint32
	MaxPrice   uint32 // Zero means no ceiling
	Sort       SortOrder
}

func (q SearchQuery) matches(l *Listing) bool {
	if !l.Visibility.Visible(q.PlayerID, q.Faction) {
		return false
	}
	if q.Name != "" && !strings.Contains(l.Item.Name, q.Name) {
		return false
	}
	if q.Category != nil && !q.Category.Includes(l.Item.Category) {
		return false
	}
	if q.LocationID != "" && l.LocationID != q.LocationID {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(q.Tags, func(t string) bool { return slices.Contains(l.Tags, t) }) {
		return false
	}
	if l.PricePerUnit < q.MinPrice {
		return false
	}
	if q.MaxPrice > 0 && l.PricePerUnit > q.MaxPrice {
		return false
	}
	return true
}

func (o SortOrder) compare(a, b Listing) int {
	var c int
	switch o {
	case SortPriceAsc:
		c = cmp.Compare(a.PricePerUnit, b.PricePerUnit)
	case SortPriceDesc:
		c = cmp.Compare(b.PricePerUnit, a.PricePerUnit)
	case SortNewest:
		c = cmp.Compare(b.CreatedAt, a.CreatedAt)
	case SortOldest:
		c = cmp.Compare(a.CreatedAt, b.CreatedAt)
	case SortQuantityAsc:
		c = cmp.Compare(a.Quantity, b.Quantity)
	case SortQuantityDesc:
		c = cmp.Compare(b.Quantity, a.Quantity)
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SearchListings returns copies of the listings visible to the query's player
// that pass every filter, in the requested order.
func (pm *PlayerMarket) SearchListings(q SearchQuery) []Listing {
	out := make([]Listing, 0)
	for _, l := range pm.Listings {
		if q.matches(l) {
			out = append(out, *l)
		}
	}
	slices.SortFunc(out, q.Sort.compare)
	return out
}

// QuoteListing validates a purchase and returns the receipt it would produce
// without touching the marketplace.
func (pm *PlayerMarket) QuoteListing(id, buyerID string, quantity uint32, reputation int32) (Purchase, error) {
	l, ok := pm.Listings[id]
	if !ok {
		return Purchase{}, fmt.Errorf("purchase listing %s: %w", id, tradeerr.ErrNotFound)
	}
	if quantity == 0 {
		return Purchase{}, fmt.Errorf("purchase listing %s: zero quantity: %w", id, tradeerr.ErrInvalidState)
	}
	if quantity > l.Quantity {
		return Purchase{}, fmt.Errorf("purchase %d from listing %s (have %d): %w",
			quantity, id, l.Quantity, tradeerr.ErrInsufficientStock)
	}
	if pm.ReputationRequirements && reputation < l.MinReputation {
		return Purchase{}, fmt.Errorf("purchase listing %s (need %d, have %d): %w",
			id, l.MinReputation, reputation, tradeerr.ErrInsufficientReputation)
	}
	return pm.receipt(l, buyerID, quantity, l.PricePerUnit, false), nil
}

// PurchaseListing buys quantity units at the listed price.
func (pm *PlayerMarket) PurchaseListing(id, buyerID string, quantity uint32, reputation int32, now uint64) (Purchase, error) {
	p, err := pm.QuoteListing(id, buyerID, quantity, reputation)
	if err != nil {
		return Purchase{}, err
	}
	return pm.commit(p, now), nil
}

func (pm *PlayerMarket) receipt(l *Listing, buyerID string, quantity, unit uint32, negotiated bool) Purchase {
	total := uint64(quantity) * uint64(unit)
	return Purchase{
		ListingID:     l.ID,
		BuyerID:       buyerID,
		SellerID:      l.SellerID,
		ItemName:      l.Item.Name,
		Quantity:      quantity,
		PricePerUnit:  unit,
		TotalPrice:    total,
		Fee:           pricing.TaxOn(total, pm.MarketFee),
		LocationID:    l.LocationID,
		WasNegotiated: negotiated,
	}
}

// commit applies a validated receipt: stock moves, the sale is recorded, and
// the hourly trend absorbs it.
func (pm *PlayerMarket) commit(p Purchase, now uint64) Purchase {
	l := pm.Listings[p.ListingID]
	l.Quantity -= p.Quantity
	l.QuantitySold += p.Quantity
	if l.Quantity == 0 {
		delete(pm.Listings, l.ID)
	}
	p.ID = uuid.NewString()
	p.Timestamp = now
	pm.Purchases = append(pm.Purchases, p)
	pm.UpdatePriceTrend(p.ItemName, p.PricePerUnit, p.Quantity, now)
	return p
}

// soldOutSeller reports the seller of a listing that no longer exists because
// it sold its last unit.
func (pm *PlayerMarket) soldOutSeller(listingID string) (string, bool) {
	for i := len(pm.Purchases) - 1; i >= 0; i-- {
		if pm.Purchases[i].ListingID == listingID {
			return pm.Purchases[i].SellerID, true
		}
	}
	return "", false
}

// RecentPurchases returns up to limit receipts, newest first.
func (pm *PlayerMarket) RecentPurchases(limit int) []Purchase {
	n := min(limit, len(pm.Purchases))
	out := make([]Purchase, 0, n)
	for i := len(pm.Purchases) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, pm.Purchases[i])
	}
	return out
}

func expiry(now, ttl uint64) *uint64 {
	if ttl == 0 {
		return nil
	}
	at := now + ttl
	return &at
}
