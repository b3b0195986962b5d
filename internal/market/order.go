package market

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/star-exchange/internal/tradeerr"
)

// Side is the direction of a standing order.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Trigger is the price condition that fires an order.
type Trigger uint8

const (
	TriggerBelow Trigger = iota // Fires when price <= target
	TriggerAbove                // Fires when price >= target
)

func (t Trigger) String() string {
	if t == TriggerAbove {
		return "above"
	}
	return "below"
}

// OrderStatus is monotonic: once an order leaves Active it never returns.
type OrderStatus uint8

const (
	OrderActive OrderStatus = iota
	OrderCompleted
	OrderCancelled
	OrderFailed
	OrderExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderActive:
		return "Active"
	case OrderCompleted:
		return "Completed"
	case OrderCancelled:
		return "Cancelled"
	case OrderFailed:
		return "Failed"
	case OrderExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// TradeOrder is a standing instruction that executes when price crosses a target.
type TradeOrder struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	LocationID    string      `json:"location_id"`
	ItemName      string      `json:"item_name"`
	Side          Side        `json:"side"`
	Quantity      uint32      `json:"quantity"`
	TargetPrice   uint32      `json:"target_price"`
	Trigger       Trigger     `json:"trigger"`
	Status        OrderStatus `json:"status"`
	CreatedAt     uint64      `json:"created_at"`
	ExpiresAt     *uint64     `json:"expires_at,omitempty"`
	ExecutedAt    *uint64     `json:"executed_at,omitempty"`
	ExecutedPrice uint32      `json:"executed_price,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// Triggered reports whether price satisfies the order's condition.
func (o *TradeOrder) Triggered(price uint32) bool {
	switch o.Side {
	case SideBuy:
		return o.Trigger == TriggerBelow && price <= o.TargetPrice
	case SideSell:
		return o.Trigger == TriggerAbove && price >= o.TargetPrice
	default:
		return false
	}
}

// Expired reports whether the order's deadline has passed at now.
func (o *TradeOrder) Expired(now uint64) bool {
	return o.ExpiresAt != nil && now > *o.ExpiresAt
}

func expiry(now, ttl uint64) *uint64 {
	if ttl == 0 {
		return nil
	}
	at := now + ttl
	return &at
}

// CreateBuyOrder places a standing buy that fires when price falls to target.
// ttl is in seconds; zero means the order never expires.
func (m *SystemMarket) CreateBuyOrder(ownerID, itemName string, quantity, target uint32, now, ttl uint64) (string, error) {
	if _, ok := m.Items[itemName]; !ok {
		return "", fmt.Errorf("buy order for %s at %s: %w", itemName, m.LocationID, tradeerr.ErrNotFound)
	}
	if quantity == 0 {
		return "", fmt.Errorf("buy order for %s: zero quantity: %w", itemName, tradeerr.ErrInvalidState)
	}
	o := &TradeOrder{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		LocationID:  m.LocationID,
		ItemName:    itemName,
		Side:        SideBuy,
		Quantity:    quantity,
		TargetPrice: target,
		Trigger:     TriggerBelow,
		Status:      OrderActive,
		CreatedAt:   now,
		ExpiresAt:   expiry(now, ttl),
		Notes:       fmt.Sprintf("Buy %d of %s when price falls below %d", quantity, itemName, target),
	}
	m.Orders = append(m.Orders, o)
	return o.ID, nil
}

// CreateSellOrder places a standing sell that fires when price rises to target.
// The market need not stock the good yet.
func (m *SystemMarket) CreateSellOrder(ownerID, itemName string, quantity, target uint32, now, ttl uint64) (string, error) {
	if quantity == 0 {
		return "", fmt.Errorf("sell order for %s: zero quantity: %w", itemName, tradeerr.ErrInvalidState)
	}
	o := &TradeOrder{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		LocationID:  m.LocationID,
		ItemName:    itemName,
		Side:        SideSell,
		Quantity:    quantity,
		TargetPrice: target,
		Trigger:     TriggerAbove,
		Status:      OrderActive,
		CreatedAt:   now,
		ExpiresAt:   expiry(now, ttl),
		Notes:       fmt.Sprintf("Sell %d of %s when price rises above %d", quantity, itemName, target),
	}
	m.Orders = append(m.Orders, o)
	return o.ID, nil
}

// CancelOrder cancels an active order owned by ownerID.
func (m *SystemMarket) CancelOrder(id, ownerID string) error {
	for _, o := range m.Orders {
		if o.ID != id || o.OwnerID != ownerID || o.Status != OrderActive {
			continue
		}
		o.Status = OrderCancelled
		return nil
	}
	return fmt.Errorf("cancel order %s: %w", id, tradeerr.ErrNotFound)
}

// Order looks up an order by id.
func (m *SystemMarket) Order(id string) (TradeOrder, bool) {
	for _, o := range m.Orders {
		if o.ID == id {
			return *o, true
		}
	}
	return TradeOrder{}, false
}

// OrdersFor returns copies of every order owned by ownerID. An empty owner
// returns all orders.
func (m *SystemMarket) OrdersFor(ownerID string) []TradeOrder {
	var out []TradeOrder
	for _, o := range m.Orders {
		if ownerID == "" || o.OwnerID == ownerID {
			out = append(out, *o)
		}
	}
	return out
}
