package exchange

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

var (
	ore   = item.New("Ore", 40, 2, item.ResourceCategory(item.ResourceMineral))
	iron  = item.New("Iron", 100, 2, item.ResourceCategory(item.ResourceMineral))
	laser = item.New("Mining Laser", 800, 5, item.Of(item.KindEquipment))
)

func list(t *testing.T, pm *PlayerMarket, req ListingRequest, now uint64) string {
	t.Helper()
	if req.SellerID == "" {
		req.SellerID = "seller"
	}
	id, err := pm.CreateListing(req, now)
	require.NoError(t, err)
	return id
}

func TestListingDepletion(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: ore, Quantity: 20, PricePerUnit: 50, LocationID: "sol"}, 0)

	p, err := pm.PurchaseListing(id, "buyer", 20, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), p.TotalPrice)
	assert.Equal(t, uint64(50), p.Fee)
	assert.Equal(t, uint64(950), p.SellerProceeds())
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, uint64(100), p.Timestamp)

	_, ok := pm.Listings[id]
	assert.False(t, ok, "sold-out listing must be removed")

	_, err = pm.PurchaseListing(id, "buyer", 1, 0, 101)
	assert.True(t, errors.Is(err, tradeerr.ErrNotFound))
	assert.Len(t, pm.Purchases, 1)
}

func TestPurchaseListingFailures(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: laser, Quantity: 3, PricePerUnit: 900, MinReputation: 10}, 0)

	_, err := pm.PurchaseListing(id, "b", 4, 50, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	_, err = pm.PurchaseListing(id, "b", 1, 5, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientReputation))
	_, err = pm.PurchaseListing(id, "b", 0, 50, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState))
	assert.Equal(t, uint32(3), pm.Listings[id].Quantity)
	assert.Empty(t, pm.Purchases)

	pm.ReputationRequirements = false
	p, err := pm.PurchaseListing(id, "b", 1, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), pm.Listings[id].Quantity)
	assert.Equal(t, uint32(1), pm.Listings[id].QuantitySold)
	assert.False(t, p.WasNegotiated)
}

func TestCreateListingRejectsZeroQuantity(t *testing.T) {
	_, err := New().CreateListing(ListingRequest{Item: ore}, 0)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState))
}

func TestBidRace(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true}, 0)

	first, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "a", BidAmount: 90, Quantity: 10}, 1)
	require.NoError(t, err)
	second, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "b", BidAmount: 95, Quantity: 10}, 2)
	require.NoError(t, err)

	p, err := pm.AcceptBid(first, "seller", 3)
	require.NoError(t, err)
	assert.True(t, p.WasNegotiated)
	assert.Equal(t, uint64(900), p.TotalPrice)
	_, ok := pm.Listings[id]
	assert.False(t, ok)

	_, err = pm.AcceptBid(second, "seller", 4)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	b, _ := pm.Bid(second)
	assert.Equal(t, BidPending, b.Status)

	b, _ = pm.Bid(first)
	assert.Equal(t, BidAccepted, b.Status)
	_, err = pm.AcceptBid(first, "seller", 5)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState), "accepted bids never pay out twice")
	assert.Len(t, pm.Purchases, 1)
}

func TestAcceptBidPartialStock(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true}, 0)
	bid, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "a", BidAmount: 90, Quantity: 8}, 1)
	require.NoError(t, err)
	_, err = pm.PurchaseListing(id, "c", 5, 0, 2)
	require.NoError(t, err)

	_, err = pm.AcceptBid(bid, "seller", 3)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	b, _ := pm.Bid(bid)
	assert.Equal(t, BidPending, b.Status)
}

func TestListingExpiryRejectsPendingBids(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true, TTL: 60}, 0)
	bid, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "a", BidAmount: 90, Quantity: 1}, 1)
	require.NoError(t, err)

	listings, bids := pm.ProcessExpirations(61)
	assert.Equal(t, []string{id}, listings)
	assert.Empty(t, bids)
	b, _ := pm.Bid(bid)
	assert.Equal(t, BidRejected, b.Status)

	_, err = pm.AcceptBid(bid, "seller", 62)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState))
}

func TestPartlySoldListingExpiryRejectsBids(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true, TTL: 60}, 0)
	bid, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "a", BidAmount: 90, Quantity: 3}, 1)
	require.NoError(t, err)
	_, err = pm.PurchaseListing(id, "c", 4, 0, 2)
	require.NoError(t, err)

	pm.ProcessExpirations(61)
	_, err = pm.AcceptBid(bid, "seller", 62)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState))
	b, _ := pm.Bid(bid)
	assert.Equal(t, BidRejected, b.Status, "the bid must not wait on a listing that is gone")
	assert.Len(t, pm.Purchases, 1)
}

func TestBidGuards(t *testing.T) {
	pm := New()
	fixed := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100}, 0)
	open := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true}, 0)

	_, err := pm.PlaceBid(BidRequest{ListingID: fixed, BidderID: "a", Quantity: 1}, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInvalidState))
	_, err = pm.PlaceBid(BidRequest{ListingID: "missing", BidderID: "a", Quantity: 1}, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrNotFound))
	_, err = pm.PlaceBid(BidRequest{ListingID: open, BidderID: "a", Quantity: 11}, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	_, err = pm.PlaceBid(BidRequest{ListingID: open, BidderID: "seller", Quantity: 1}, 1)
	assert.True(t, errors.Is(err, tradeerr.ErrUnauthorized))

	bid, err := pm.PlaceBid(BidRequest{ListingID: open, BidderID: "a", BidAmount: 80, Quantity: 2}, 1)
	require.NoError(t, err)
	_, err = pm.AcceptBid(bid, "mallory", 2)
	assert.True(t, errors.Is(err, tradeerr.ErrUnauthorized))
	assert.True(t, errors.Is(pm.RejectBid(bid, "mallory"), tradeerr.ErrUnauthorized))
	assert.True(t, errors.Is(pm.CancelBid(bid, "mallory"), tradeerr.ErrUnauthorized))

	require.NoError(t, pm.CancelBid(bid, "a"))
	assert.True(t, errors.Is(pm.RejectBid(bid, "seller"), tradeerr.ErrInvalidState))
	assert.True(t, errors.Is(pm.CancelBid(bid, "a"), tradeerr.ErrInvalidState))

	other, err := pm.PlaceBid(BidRequest{ListingID: open, BidderID: "b", BidAmount: 70, Quantity: 1}, 1)
	require.NoError(t, err)
	require.NoError(t, pm.RejectBid(other, "seller"))
	assert.Len(t, pm.BidsFor(open), 2)
}

func TestBidExpiry(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100, Negotiable: true}, 0)
	bid, err := pm.PlaceBid(BidRequest{ListingID: id, BidderID: "a", Quantity: 1, TTL: 3600}, 0)
	require.NoError(t, err)

	_, bids := pm.ProcessExpirations(3600)
	assert.Empty(t, bids, "expiry is strictly after the deadline")
	_, bids = pm.ProcessExpirations(3601)
	assert.Equal(t, []string{bid}, bids)
	b, ok := pm.Bid(bid)
	require.True(t, ok, "expired bids stay on record")
	assert.Equal(t, BidExpired, b.Status)
}

func TestSearchListings(t *testing.T) {
	pm := New()
	cheap := list(t, pm, ListingRequest{Item: ore, Quantity: 50, PricePerUnit: 30, LocationID: "sol", Tags: []string{"bulk"}}, 10)
	pricey := list(t, pm, ListingRequest{Item: iron, Quantity: 5, PricePerUnit: 120, LocationID: "vega", Tags: []string{"refined", "bulk"}}, 20)
	guild := list(t, pm, ListingRequest{Item: laser, Quantity: 1, PricePerUnit: 900, LocationID: "sol", Visibility: FactionOnly("miners")}, 30)
	private := list(t, pm, ListingRequest{Item: laser, Quantity: 2, PricePerUnit: 850, LocationID: "sol", Visibility: PlayerList("p7")}, 40)

	ids := func(ls []Listing) []string {
		out := make([]string, len(ls))
		for i, l := range ls {
			out[i] = l.ID
		}
		return out
	}

	assert.Equal(t, []string{cheap, pricey}, ids(pm.SearchListings(SearchQuery{PlayerID: "p1"})))
	assert.Equal(t, []string{cheap, pricey, private}, ids(pm.SearchListings(SearchQuery{PlayerID: "p7"})))
	assert.Equal(t, []string{cheap, pricey, guild}, ids(pm.SearchListings(SearchQuery{PlayerID: "p1", Faction: "miners"})))

	all := SearchQuery{PlayerID: "p7", Faction: "miners"}
	q := all
	q.Sort = SortNewest
	assert.Equal(t, []string{private, guild, pricey, cheap}, ids(pm.SearchListings(q)))
	q.Sort = SortQuantityDesc
	assert.Equal(t, []string{cheap, pricey, private, guild}, ids(pm.SearchListings(q)))
	q.Sort = SortPriceDesc
	assert.Equal(t, []string{guild, private, pricey, cheap}, ids(pm.SearchListings(q)))

	q = all
	q.Name = "Laser"
	q.LocationID = "sol"
	assert.ElementsMatch(t, []string{guild, private}, ids(pm.SearchListings(q)))

	q = all
	q.Tags = []string{"refined"}
	assert.Equal(t, []string{pricey}, ids(pm.SearchListings(q)))

	q = all
	cat := item.ResourceCategory(item.ResourceMineral)
	q.Category = &cat
	q.MinPrice = 31
	assert.Equal(t, []string{pricey}, ids(pm.SearchListings(q)))

	q = all
	q.MaxPrice = 100
	assert.Equal(t, []string{cheap}, ids(pm.SearchListings(q)))
}

func TestParseSortOrder(t *testing.T) {
	o, ok := ParseSortOrder("quantity_desc")
	require.True(t, ok)
	assert.Equal(t, SortQuantityDesc, o)
	_, ok = ParseSortOrder("random")
	assert.False(t, ok)
}

func TestPriceTrendWeightedAverage(t *testing.T) {
	pm := New()
	pm.UpdatePriceTrend("Iron", 100, 10, 7200+5)
	pm.UpdatePriceTrend("Iron", 130, 5, 7200+1800)

	trends := pm.TrendFor("Iron")
	require.Len(t, trends, 1)
	tr := trends[0]
	assert.Equal(t, uint32(110), tr.AveragePrice) // (10×100 + 5×130) / 15
	assert.Equal(t, uint32(100), tr.LowestPrice)
	assert.Equal(t, uint32(130), tr.HighestPrice)
	assert.Equal(t, uint32(15), tr.VolumeTraded)
	assert.Equal(t, uint64(7200), tr.HourTimestamp)
}

func TestPriceTrendKeepsOneDay(t *testing.T) {
	pm := New()
	for h := uint64(0); h < 30; h++ {
		pm.UpdatePriceTrend("Iron", uint32(100+h), 1, h*3600)
	}
	trends := pm.TrendFor("Iron")
	require.Len(t, trends, MaxTrendBuckets)
	assert.Equal(t, uint64(6*3600), trends[0].HourTimestamp)
	assert.Equal(t, uint32(129), trends[MaxTrendBuckets-1].AveragePrice)
}

func TestPriceTrendHugeVolumeSaturates(t *testing.T) {
	pm := New()
	pm.UpdatePriceTrend("Iron", math.MaxUint32, math.MaxUint32, 0)
	pm.UpdatePriceTrend("Iron", math.MaxUint32-1, 1, 10)
	pm.UpdatePriceTrend("Iron", 7, math.MaxUint32, 20)

	tr := pm.TrendFor("Iron")[0]
	assert.Equal(t, uint32(math.MaxUint32), tr.VolumeTraded)
	assert.Equal(t, uint32(7), tr.LowestPrice)
	assert.GreaterOrEqual(t, tr.AveragePrice, uint32(7))
	assert.Less(t, tr.AveragePrice, uint32(math.MaxUint32))
}

func TestPriceTrendBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pm := New()
		trades := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) [2]uint32 {
			return [2]uint32{rapid.Uint32Range(1, 100_000).Draw(t, "price"), rapid.Uint32Range(1, 1000).Draw(t, "qty")}
		}), 1, 50).Draw(t, "trades")

		var volume uint32
		lo, hi := trades[0][0], trades[0][0]
		for _, tr := range trades {
			pm.UpdatePriceTrend("X", tr[0], tr[1], 100)
			volume += tr[1]
			lo, hi = min(lo, tr[0]), max(hi, tr[0])
		}
		b := pm.TrendFor("X")[0]
		if b.VolumeTraded != volume || b.LowestPrice != lo || b.HighestPrice != hi {
			t.Fatalf("bucket %+v, want volume %d range [%d,%d]", b, volume, lo, hi)
		}
		if b.AveragePrice < lo || b.AveragePrice > hi {
			t.Fatalf("average %d outside [%d,%d]", b.AveragePrice, lo, hi)
		}
	})
}

func TestMarketStatistics(t *testing.T) {
	pm := New()
	_, ok := pm.MarketStatistics("Iron")
	assert.False(t, ok)

	a := list(t, pm, ListingRequest{Item: iron, Quantity: 10, PricePerUnit: 100}, 0)
	list(t, pm, ListingRequest{Item: iron, Quantity: 30, PricePerUnit: 140}, 0)
	list(t, pm, ListingRequest{Item: ore, Quantity: 30, PricePerUnit: 10}, 0)

	_, err := pm.PurchaseListing(a, "b", 5, 0, 0)
	require.NoError(t, err)
	pm.UpdatePriceTrend("Iron", 120, 1, 3600)

	s, ok := pm.MarketStatistics("Iron")
	require.True(t, ok)
	assert.Equal(t, 2, s.ListingCount)
	assert.Equal(t, uint32(35), s.QuantityAvailable)
	assert.Equal(t, uint32(100), s.MinPrice)
	assert.Equal(t, uint32(140), s.MaxPrice)
	assert.Equal(t, uint32(134), s.AvgPrice) // (5×100 + 30×140) / 35
	assert.Equal(t, 1, s.SalesCount)
	assert.Equal(t, uint64(5), s.SalesVolume)
	assert.Equal(t, uint64(500), s.SalesValue)
	assert.InDelta(t, 20.0, s.PriceChangePercent, 1e-9)
	assert.Len(t, s.PriceHistory, 2)
}

func TestRecentPurchases(t *testing.T) {
	pm := New()
	id := list(t, pm, ListingRequest{Item: ore, Quantity: 10, PricePerUnit: 5}, 0)
	for i := uint64(1); i <= 3; i++ {
		_, err := pm.PurchaseListing(id, "b", 1, 0, i)
		require.NoError(t, err)
	}
	recent := pm.RecentPurchases(2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(3), recent[0].Timestamp)
	assert.Equal(t, uint64(2), recent[1].Timestamp)
	assert.Len(t, pm.RecentPurchases(10), 3)
}
