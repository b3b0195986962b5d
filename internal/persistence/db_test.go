package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/engine"
	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/player"
)

var ore = item.New("Ore", 40, 1, item.ResourceCategory(item.ResourceMineral))

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "star.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// busyEconomy runs a few ticks with orders, listings, bids, a contract, and
// sales so every table has rows.
func busyEconomy(t *testing.T) (*economy.EconomySystem, *player.Registry) {
	t.Helper()
	eco := economy.New(economy.DefaultConfig(), entropy.NewSeeded(9))
	eco.InitializeMarket("sol", market.KindTrading).AddItem(ore, 300, 40, 0.2)
	eco.InitializeMarket("kepler", market.KindMining).AddItem(ore, 900, 40, 0.2)
	reg := player.NewRegistry()
	eco.Accounts = reg
	seller := reg.Open("seller", "Seller", "miners", 1_000, player.DefaultCapacity)
	reg.Open("buyer", "Buyer", "", 50_000, player.DefaultCapacity)
	require.NoError(t, seller.Store(ore, 50))

	_, err := eco.CreateBuyOrder("buyer", "sol", "Ore", 5, 1, 0, 0)
	require.NoError(t, err)
	listing, err := eco.ListItemForSale(exchange.ListingRequest{
		SellerID: "seller", Item: ore, Quantity: 50, PricePerUnit: 45,
		LocationID: "sol", Negotiable: true, Tags: []string{"bulk"},
		Visibility: exchange.FactionOnly("miners"),
	}, 0)
	require.NoError(t, err)
	_, err = eco.PurchaseListing("buyer", listing, 10, 100)
	require.NoError(t, err)
	_, err = eco.PlaceBidOnListing(exchange.BidRequest{ListingID: listing, BidderID: "buyer", BidAmount: 40, Quantity: 5, TTL: 10_000}, 200)
	require.NoError(t, err)
	contract, err := eco.PostContract(exchange.ContractRequest{IssuerID: "buyer", Title: "Haul", RewardCredits: 500, Public: true}, 300)
	require.NoError(t, err)
	require.NoError(t, eco.AcceptContract(contract, "seller", 400))

	for i := uint64(1); i <= 5; i++ {
		eco.Update(i * 3600)
	}
	return eco, reg
}

func TestEconomyRoundTrip(t *testing.T) {
	db := openTemp(t)

	has, err := db.HasEconomyState()
	require.NoError(t, err)
	assert.False(t, has)

	eco, _ := busyEconomy(t)
	require.NoError(t, db.SaveEconomy(eco))

	has, err = db.HasEconomyState()
	require.NoError(t, err)
	assert.True(t, has)

	loaded, err := db.LoadEconomy(economy.DefaultConfig(), entropy.NewSeeded(9))
	require.NoError(t, err)

	assert.Equal(t, eco.Step, loaded.Step)
	assert.Equal(t, eco.LastUpdate, loaded.LastUpdate)
	assert.Equal(t, eco.UpdateInterval, loaded.UpdateInterval)
	assert.Equal(t, eco.InflationRate, loaded.InflationRate)
	assert.Equal(t, eco.TradeIndex, loaded.TradeIndex)
	assert.Equal(t, eco.ResourceScarcity, loaded.ResourceScarcity)
	assert.Equal(t, eco.GlobalEvents, loaded.GlobalEvents)
	assert.Equal(t, eco.Markets, loaded.Markets)
	assert.Equal(t, eco.Player.Listings, loaded.Player.Listings)
	assert.Equal(t, eco.Player.Bids, loaded.Player.Bids)
	assert.Equal(t, eco.Player.Contracts, loaded.Player.Contracts)
	assert.Equal(t, eco.Player.Purchases, loaded.Player.Purchases)
	assert.Equal(t, eco.Player.Trends, loaded.Player.Trends)
	assert.Equal(t, eco.Player.MarketFee, loaded.Player.MarketFee)
	assert.Nil(t, loaded.Accounts)
}

func TestSaveEconomyReplaces(t *testing.T) {
	db := openTemp(t)
	eco, _ := busyEconomy(t)
	require.NoError(t, db.SaveEconomy(eco))

	delete(eco.Markets, "kepler")
	for id := range eco.Player.Listings {
		delete(eco.Player.Listings, id)
	}
	require.NoError(t, db.SaveEconomy(eco))

	loaded, err := db.LoadEconomy(economy.DefaultConfig(), entropy.NewSeeded(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"sol"}, loaded.MarketIDs())
	assert.Empty(t, loaded.Player.Listings)
}

func TestRecentPurchases(t *testing.T) {
	db := openTemp(t)
	eco, _ := busyEconomy(t)
	seller, _ := eco.Accounts.Account("seller")
	require.NoError(t, seller.Store(ore, 3))
	id, err := eco.ListItemForSale(exchange.ListingRequest{SellerID: "seller", Item: ore, Quantity: 3, PricePerUnit: 60}, 0)
	require.NoError(t, err)
	last, err := eco.PurchaseListing("buyer", id, 3, 20_000)
	require.NoError(t, err)
	require.NoError(t, db.SaveEconomy(eco))

	got, err := db.RecentPurchases(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, last, got[0])

	all, err := db.RecentPurchases(100)
	require.NoError(t, err)
	assert.Len(t, all, len(eco.Player.Purchases))
}

func TestAccountsRoundTrip(t *testing.T) {
	db := openTemp(t)
	_, reg := busyEconomy(t)
	require.NoError(t, db.SaveAccounts(reg.All()))

	restored := player.NewRegistry()
	require.NoError(t, db.LoadAccounts(restored))
	assert.Equal(t, reg.All(), restored.All())
}

func TestMeta(t *testing.T) {
	db := openTemp(t)
	_, err := db.GetMeta(MetaGameClock)
	assert.Error(t, err)

	require.NoError(t, db.SaveMeta(MetaGameClock, "7200"))
	require.NoError(t, db.SaveMeta(MetaGameClock, "10800"))
	v, err := db.GetMeta(MetaGameClock)
	require.NoError(t, err)
	assert.Equal(t, "10800", v)

	has, err := db.HasEconomyState()
	require.NoError(t, err)
	assert.False(t, has, "unrelated meta is not a saved economy")
}

func TestSaveSimulation(t *testing.T) {
	db := openTemp(t)
	clock, err := db.LoadClock()
	require.NoError(t, err)
	assert.Zero(t, clock)

	eco, reg := busyEconomy(t)
	sim := engine.NewSimulation(eco, reg)
	require.NoError(t, db.SaveSimulation(sim, 5*3600))

	clock, err = db.LoadClock()
	require.NoError(t, err)
	assert.Equal(t, uint64(5*3600), clock)

	has, err := db.HasEconomyState()
	require.NoError(t, err)
	assert.True(t, has)

	restored := player.NewRegistry()
	require.NoError(t, db.LoadAccounts(restored))
	assert.Len(t, restored.All(), 2)
}
