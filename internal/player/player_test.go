package player

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

var (
	ore  = item.New("Ore", 40, 2, item.ResourceCategory(item.ResourceMineral))
	hull = item.New("Hull Plate", 700, 25, item.Of(item.KindShipModule))
)

func TestInventoryCapacity(t *testing.T) {
	inv := NewInventory(100)
	require.NoError(t, inv.Add(ore, 30))
	assert.Equal(t, uint64(60), inv.Used())
	assert.Equal(t, uint64(40), inv.Remaining())

	assert.False(t, inv.Fits(hull, 2))
	err := inv.Add(hull, 2)
	assert.True(t, errors.Is(err, tradeerr.ErrCapacityExceeded))
	assert.Equal(t, uint64(60), inv.Used(), "failed loads must not change the hold")

	require.NoError(t, inv.Add(hull, 1))
	require.NoError(t, inv.Add(ore, 5))
	assert.Equal(t, uint64(95), inv.Used())

	contents := inv.Contents()
	require.Len(t, contents, 2)
	assert.Equal(t, "Hull Plate", contents[0].Item.Name)
	assert.Equal(t, uint32(35), contents[1].Quantity)
}

func TestInventoryRemove(t *testing.T) {
	inv := NewInventory(DefaultCapacity)
	require.NoError(t, inv.Add(ore, 10))

	_, err := inv.Remove("Ore", 11)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	_, err = inv.Remove("Gold", 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))

	it, err := inv.Remove("Ore", 10)
	require.NoError(t, err)
	assert.Equal(t, ore, it)
	_, n := inv.Quantity("Ore")
	assert.Zero(t, n)
	assert.Empty(t, inv.Slots, "emptied slots are dropped")
}

func TestAccountWallet(t *testing.T) {
	a := &Account{ID: "a", Credits: 100, Reputation: 12, Inventory: NewInventory(10)}
	assert.Equal(t, uint64(100), a.Balance())
	assert.Equal(t, int32(12), a.Standing())

	err := a.Debit(101)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientFunds))
	assert.Equal(t, uint64(100), a.Credits)
	require.NoError(t, a.Debit(40))
	a.Credit(15)
	assert.Equal(t, uint64(75), a.Credits)

	assert.True(t, a.CanHold(ore, 5))
	assert.False(t, a.CanHold(ore, 6))
	require.NoError(t, a.Store(ore, 5))
	it, n := a.Holding("Ore")
	assert.Equal(t, ore, it)
	assert.Equal(t, uint32(5), n)
	_, err = a.Take("Ore", 5)
	require.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.Open("b", "Bea", "guild", 500, DefaultCapacity)
	again := r.Open("b", "Other", "", 0, 1)
	assert.Same(t, a, again, "Open keeps the existing account")
	assert.Equal(t, uint64(500), again.Credits)

	r.Put(&Account{ID: "a", Name: "Al"})
	got, ok := r.Get("a")
	require.True(t, ok)
	require.NotNil(t, got.Inventory)
	assert.Equal(t, uint32(DefaultCapacity), got.Inventory.Capacity)

	w, ok := r.Account("b")
	require.True(t, ok)
	assert.Equal(t, uint64(500), w.Balance())
	_, ok = r.Account("nobody")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
}

func TestRegistryConcurrentOpen(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Open("shared", "Shared", "", 10, DefaultCapacity)
		}()
	}
	wg.Wait()
	assert.Len(t, r.All(), 1)
}
