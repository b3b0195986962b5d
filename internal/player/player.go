// Package player holds trader accounts: a credit balance, a faction and
// reputation, and a weight-limited cargo hold.
package player

import (
	"fmt"
	"sort"
	"sync"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// DefaultCapacity is the cargo weight a new account can carry.
const DefaultCapacity = 500

// Slot is one good held in an inventory.
type Slot struct {
	Item     item.Item `json:"item"`
	Quantity uint32    `json:"quantity"`
}

// Inventory is a cargo hold limited by total weight.
type Inventory struct {
	Capacity uint32           `json:"capacity"`
	Slots    map[string]*Slot `json:"slots"`
}

// NewInventory returns an empty hold.
func NewInventory(capacity uint32) *Inventory {
	return &Inventory{Capacity: capacity, Slots: make(map[string]*Slot)}
}

// Used is the weight currently aboard.
func (inv *Inventory) Used() uint64 {
	var w uint64
	for _, s := range inv.Slots {
		w += uint64(s.Item.Weight) * uint64(s.Quantity)
	}
	return w
}

// Remaining is the weight that can still be loaded.
func (inv *Inventory) Remaining() uint64 {
	used := inv.Used()
	if used >= uint64(inv.Capacity) {
		return 0
	}
	return uint64(inv.Capacity) - used
}

// Fits reports whether quantity units of it can be loaded.
func (inv *Inventory) Fits(it item.Item, quantity uint32) bool {
	return uint64(it.Weight)*uint64(quantity) <= inv.Remaining()
}

// Add loads goods, failing without change if they would overflow the hold.
func (inv *Inventory) Add(it item.Item, quantity uint32) error {
	if !inv.Fits(it, quantity) {
		return fmt.Errorf("load %d %s (%d free): %w", quantity, it.Name, inv.Remaining(), tradeerr.ErrCapacityExceeded)
	}
	if s, ok := inv.Slots[it.Name]; ok {
		s.Quantity += quantity
		return nil
	}
	inv.Slots[it.Name] = &Slot{Item: it, Quantity: quantity}
	return nil
}

// Remove unloads goods and returns their descriptor.
func (inv *Inventory) Remove(name string, quantity uint32) (item.Item, error) {
	s, ok := inv.Slots[name]
	if !ok || s.Quantity < quantity {
		return item.Item{}, fmt.Errorf("unload %d %s: %w", quantity, name, tradeerr.ErrInsufficientStock)
	}
	s.Quantity -= quantity
	if s.Quantity == 0 {
		delete(inv.Slots, name)
	}
	return s.Item, nil
}

// Quantity returns how many units of a good are aboard.
func (inv *Inventory) Quantity(name string) (item.Item, uint32) {
	if s, ok := inv.Slots[name]; ok {
		return s.Item, s.Quantity
	}
	return item.Item{}, 0
}

// Contents lists the hold in name order.
func (inv *Inventory) Contents() []Slot {
	out := make([]Slot, 0, len(inv.Slots))
	for _, s := range inv.Slots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item.Name < out[j].Item.Name })
	return out
}

// Account is a trader.
type Account struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Credits    uint64     `json:"credits"`
	Faction    string     `json:"faction,omitempty"`
	Reputation int32      `json:"reputation"`
	Inventory  *Inventory `json:"inventory"`
}

func (a *Account) Balance() uint64 { return a.Credits }

func (a *Account) Standing() int32 { return a.Reputation }

func (a *Account) Debit(amount uint64) error {
	if amount > a.Credits {
		return fmt.Errorf("%s pays %d (has %d): %w", a.ID, amount, a.Credits, tradeerr.ErrInsufficientFunds)
	}
	a.Credits -= amount
	return nil
}

func (a *Account) Credit(amount uint64) { a.Credits += amount }

func (a *Account) Store(it item.Item, quantity uint32) error { return a.Inventory.Add(it, quantity) }

func (a *Account) Take(name string, quantity uint32) (item.Item, error) {
	return a.Inventory.Remove(name, quantity)
}

func (a *Account) Holding(name string) (item.Item, uint32) { return a.Inventory.Quantity(name) }

func (a *Account) CanHold(it item.Item, quantity uint32) bool { return a.Inventory.Fits(it, quantity) }

func (a *Account) FreeCapacity() uint64 { return a.Inventory.Remaining() }

// Registry is the set of known accounts. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{accounts: make(map[string]*Account)}
}

// Open registers an account, or returns the existing one with that id.
func (r *Registry) Open(id, name, faction string, credits uint64, capacity uint32) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return a
	}
	a := &Account{ID: id, Name: name, Faction: faction, Credits: credits, Inventory: NewInventory(capacity)}
	r.accounts[id] = a
	return a
}

// Put registers or replaces a fully formed account, as when loading state.
func (r *Registry) Put(a *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Inventory == nil {
		a.Inventory = NewInventory(DefaultCapacity)
	}
	r.accounts[a.ID] = a
}

// Get returns the account with id.
func (r *Registry) Get(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// Account implements economy.AccountBook.
func (r *Registry) Account(id string) (economy.Wallet, bool) {
	a, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return a, true
}

// All returns every account in id order.
func (r *Registry) All() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
