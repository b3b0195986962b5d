package market

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/pricing"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// flatSource yields 0.5 forever: zero noise, no spawned events, events survive.
type flatSource struct{}

func (flatSource) Float64() float64 { return 0.5 }
func (flatSource) Intn(int) int     { return 0 }

var (
	iron  = item.New("Iron", 100, 2, item.ResourceCategory(item.ResourceMineral))
	chips = item.New("Circuit Board", 300, 1, item.Of(item.KindComponent))
	rifle = item.New("Pulse Rifle", 900, 4, item.Of(item.KindEquipment))
)

func TestAddItemSkew(t *testing.T) {
	mining := New("kepler", KindMining)
	ore := mining.AddItem(iron, 100, 100, 0.2)
	assert.Equal(t, 1.5, ore.SupplyLevel)
	assert.Equal(t, 0.7, ore.DemandLevel)
	part := mining.AddItem(chips, 10, 300, 0.2)
	assert.Equal(t, 0.7, part.SupplyLevel)
	assert.Equal(t, 1.3, part.DemandLevel)
	assert.Greater(t, part.CurrentPrice, ore.CurrentPrice)

	black := New("tortuga", KindBlack)
	contraband := black.AddItem(rifle, 5, 1000, 0.3)
	assert.Equal(t, uint32(1200), contraband.BasePrice)
	assert.InDelta(t, 0.6, contraband.Volatility, 1e-9)
	assert.Equal(t, 0.0, black.TaxRate)

	trading := New("sol", KindTrading)
	neutralIron := trading.AddItem(iron, 100, 500, 0.1)
	assert.Equal(t, uint32(500), neutralIron.CurrentPrice)
}

func TestBuy(t *testing.T) {
	m := New("sol", KindTrading)
	m.AddItem(iron, 100, 500, 0.1)

	_, err := m.Buy("Iron", 101, 10)
	require.True(t, errors.Is(err, tradeerr.ErrInsufficientStock))
	_, err = m.Buy("Gold", 1, 10)
	require.True(t, errors.Is(err, tradeerr.ErrNotFound))
	assert.Equal(t, uint32(100), m.Items["Iron"].Quantity, "failed buys must not mutate")

	r, err := m.Buy("Iron", 10, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), r.UnitPrice)
	assert.Equal(t, uint64(5000), r.Subtotal)
	assert.Equal(t, uint64(150), r.Tax) // 3% trading tax
	assert.Equal(t, uint64(5150), r.Total)

	mi := m.Items["Iron"]
	assert.Equal(t, uint32(90), mi.Quantity)
	assert.InDelta(t, 0.98, mi.SupplyLevel, 1e-9)
	assert.Greater(t, mi.CurrentPrice, uint32(500), "scarcity raises the post-trade price")
	require.Len(t, mi.PriceHistory, 1)
	assert.Equal(t, mi.CurrentPrice, mi.PriceHistory[0].Price)
}

func TestBuySupplyFloor(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 1000, 100, 0)
	mi.SupplyLevel = 0.5
	_, err := m.Buy("Iron", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, pricing.TradeSupplyFloor, mi.SupplyLevel)
}

func TestSellMargins(t *testing.T) {
	margins := map[Kind]float64{KindBlack: 0.15, KindTrading: 0.05, KindIndustrial: 0.10}
	for kind, margin := range margins {
		m := New("x", kind)
		m.AddItem(rifle, 5, 1000, 0)
		want := uint32(float64(m.Items[rifle.Name].CurrentPrice) * (1 - margin))
		r, err := m.Sell(rifle, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, want, r.UnitPrice, kind.String())
		assert.Equal(t, uint64(want)*2, r.Total)
		assert.Zero(t, r.Tax)
		assert.Equal(t, uint32(7), m.Items[rifle.Name].Quantity)
	}
}

func TestSellOnboardsUnlistedItem(t *testing.T) {
	m := New("sol", KindTrading)
	r, err := m.Sell(chips, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(255), r.UnitPrice) // 300 × 0.85
	mi, ok := m.Item("Circuit Board")
	require.True(t, ok)
	assert.Equal(t, uint32(4), mi.Quantity)
	assert.Equal(t, uint32(255), mi.BasePrice)
}

func TestHistoryTrimmed(t *testing.T) {
	m := New("sol", KindTrading)
	m.AddItem(iron, 100, 100, 0.1)
	for i := 0; i < 25; i++ {
		m.Update(uint64(i), flatSource{}, nil)
	}
	h := m.Items["Iron"].PriceHistory
	require.Len(t, h, MaxHistory)
	assert.Equal(t, uint64(15), h[0].Timestamp)
	assert.Equal(t, uint64(24), h[MaxHistory-1].Timestamp)
}

func TestTickInvariants(t *testing.T) {
	rng := entropy.NewSeeded(99)
	m := New("kepler", KindMining)
	m.AddItem(iron, 40, 100, 1.0)
	m.AddItem(chips, 3, 300, 0.8)
	m.AddItem(rifle, 0, 900, 0.5)

	for tick := uint64(1); tick <= 500; tick++ {
		before := map[string]uint32{}
		for name, mi := range m.Items {
			before[name] = mi.CurrentPrice
		}
		if tick%7 == 0 {
			m.QueueEvent(Global(EventMarketCrash))
		} else if tick%11 == 0 {
			m.QueueEvent(Global(EventMarketBoom))
		}
		m.Update(tick*3600, rng, nil)
		for name, mi := range m.Items {
			old := float64(before[name])
			assert.LessOrEqual(t, math.Abs(float64(mi.CurrentPrice)-old), pricing.MaxStep*old+1e-9, "%s at tick %d", name, tick)
			assert.GreaterOrEqual(t, mi.SupplyLevel, pricing.MinLevel)
			assert.LessOrEqual(t, mi.SupplyLevel, pricing.MaxLevel)
			assert.GreaterOrEqual(t, mi.DemandLevel, pricing.MinLevel)
			assert.LessOrEqual(t, mi.DemandLevel, pricing.MaxLevel)
		}
	}
}

func TestQueuedShockAndRecomputeShareOneStep(t *testing.T) {
	for _, kind := range []EventKind{EventMarketCrash, EventMarketBoom} {
		m := New("sol", KindTrading)
		mi := m.AddItem(iron, 100, 100, 0)
		require.Equal(t, uint32(100), mi.CurrentPrice)

		m.QueueEvent(Global(kind))
		m.Update(3600, flatSource{}, nil)
		assert.GreaterOrEqual(t, mi.CurrentPrice, uint32(80), kind.String())
		assert.LessOrEqual(t, mi.CurrentPrice, uint32(120), kind.String())

		// Outside a tick the next shock is bounded against the new price.
		assert.False(t, mi.anchored)
	}
}

func TestTickWindowSpansExtraShocks(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 100, 0)

	m.BeginTick()
	m.QueueEvent(Global(EventMarketCrash))
	m.Update(3600, flatSource{}, nil)
	m.ApplyEvent(Global(EventMarketCrash))
	m.ApplyEvent(Global(EventMarketCrash))
	assert.Equal(t, uint32(80), mi.CurrentPrice)
	m.EndTick()

	m.ApplyEvent(Global(EventMarketCrash))
	assert.Equal(t, uint32(64), mi.CurrentPrice)
}

func TestMarketCrashIsBounded(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 500, 0)
	m.ApplyEvent(Global(EventMarketCrash))
	assert.Equal(t, uint32(400), mi.CurrentPrice)
	assert.InDelta(t, 0.6, mi.DemandLevel, 1e-9)

	m.ApplyEvent(Global(EventMarketBoom))
	assert.Equal(t, uint32(480), mi.CurrentPrice)
}

func TestTariffEvents(t *testing.T) {
	m := New("sol", KindMilitary)
	for i := 0; i < 10; i++ {
		m.ApplyEvent(Global(EventTariffIncrease))
	}
	assert.Equal(t, MaxTaxRate, m.TaxRate)
	for i := 0; i < 30; i++ {
		m.ApplyEvent(Global(EventTariffDecrease))
	}
	assert.Equal(t, MinTaxRate, m.TaxRate)
}

func TestConflictSkewsDemandByCategory(t *testing.T) {
	m := New("sol", KindTrading)
	weapons := m.AddItem(rifle, 10, 900, 0)
	ore := m.AddItem(iron, 10, 100, 0)
	m.ApplyEvent(Global(EventLocalConflict))
	assert.InDelta(t, 1.3, weapons.DemandLevel, 1e-9)
	assert.Equal(t, 1.0, ore.DemandLevel)
}

// A buy order at 500 fires once the surplus following a shortage pulls Iron to 480.
// 388 × (2 - 0.75) × 0.99 = 480.15
func TestBuyOrderAutoExecution(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 388, 0)
	mi.CurrentPrice = 500
	mi.SupplyLevel = 0.5 // shortage already in effect
	mi.ProductionRate, mi.ConsumptionRate = 0, 0

	id, err := m.CreateBuyOrder("p1", "Iron", 10, 500, 100, 0)
	require.NoError(t, err)
	o, _ := m.Order(id)
	assert.Equal(t, OrderActive, o.Status)

	m.QueueEvent(Surplus("Iron"))
	report := m.Update(3600, flatSource{}, nil)

	assert.Equal(t, uint32(480), mi.CurrentPrice)
	require.Len(t, report.Executed, 1)
	o, _ = m.Order(id)
	assert.Equal(t, OrderCompleted, o.Status)
	require.NotNil(t, o.ExecutedAt)
	assert.Equal(t, uint64(3600), *o.ExecutedAt)
	assert.Equal(t, uint32(480), o.ExecutedPrice)
	assert.Equal(t, uint32(90), mi.Quantity)

	for tick := uint64(2); tick <= 5; tick++ {
		report = m.Update(tick*3600, flatSource{}, nil)
		assert.Empty(t, report.Executed)
	}
	assert.Equal(t, uint32(90), mi.Quantity, "order must not re-fire")
	o, _ = m.Order(id)
	assert.Equal(t, uint64(3600), *o.ExecutedAt)
}

func TestSellOrderFiresAbove(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 500, 0)
	mi.ProductionRate, mi.ConsumptionRate = 0, 0

	id, err := m.CreateSellOrder("p1", "Iron", 5, 450, 0, 0)
	require.NoError(t, err)
	m.Update(1, flatSource{}, nil)
	o, _ := m.Order(id)
	assert.Equal(t, OrderCompleted, o.Status)
	assert.Equal(t, uint32(105), mi.Quantity)
}

type refusingSettler struct{ calls int }

func (s *refusingSettler) SettleOrder(Fill) error {
	s.calls++
	return tradeerr.ErrInsufficientFunds
}

func TestSettlementFailureFailsOrderWithoutMutation(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 500, 0)
	mi.ProductionRate, mi.ConsumptionRate = 0, 0
	id, err := m.CreateBuyOrder("broke", "Iron", 10, 1000, 0, 0)
	require.NoError(t, err)

	s := &refusingSettler{}
	report := m.Update(1, flatSource{}, s)
	require.Len(t, report.Failed, 1)
	o, _ := m.Order(id)
	assert.Equal(t, OrderFailed, o.Status)
	assert.Equal(t, uint32(100), mi.Quantity)

	m.Update(2, flatSource{}, s)
	assert.Equal(t, 1, s.calls, "failed orders are never retried")
}

func TestOrderWaitsForStock(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 5, 500, 0)
	mi.ProductionRate, mi.ConsumptionRate = 0, 0
	id, err := m.CreateBuyOrder("p1", "Iron", 10, 1000, 0, 0)
	require.NoError(t, err)
	m.Update(1, flatSource{}, nil)
	o, _ := m.Order(id)
	assert.Equal(t, OrderActive, o.Status)
}

func TestExpiredOrdersCancelled(t *testing.T) {
	m := New("sol", KindTrading)
	m.AddItem(iron, 100, 500, 0)
	id, err := m.CreateBuyOrder("p1", "Iron", 1, 1, 0, 3600)
	require.NoError(t, err)
	report := m.Update(7200, flatSource{}, nil)
	require.Len(t, report.Cancelled, 1)
	o, _ := m.Order(id)
	assert.Equal(t, OrderCancelled, o.Status)
}

func TestCreateOrdersValidation(t *testing.T) {
	m := New("sol", KindTrading)
	_, err := m.CreateBuyOrder("p1", "Unobtainium", 1, 1, 0, 0)
	assert.True(t, errors.Is(err, tradeerr.ErrNotFound))
	_, err = m.CreateSellOrder("p1", "Unobtainium", 1, 1, 0, 0)
	assert.NoError(t, err, "sell orders may name goods the market has never stocked")
}

func TestCancelOrder(t *testing.T) {
	m := New("sol", KindTrading)
	m.AddItem(iron, 100, 500, 0)
	id, err := m.CreateBuyOrder("p1", "Iron", 1, 1, 0, 0)
	require.NoError(t, err)

	assert.True(t, errors.Is(m.CancelOrder(id, "p2"), tradeerr.ErrNotFound))
	assert.True(t, errors.Is(m.CancelOrder("nope", "p1"), tradeerr.ErrNotFound))
	require.NoError(t, m.CancelOrder(id, "p1"))
	assert.True(t, errors.Is(m.CancelOrder(id, "p1"), tradeerr.ErrNotFound), "already cancelled")
	assert.Len(t, m.OrdersFor("p1"), 1)
}

func TestPriceTrend(t *testing.T) {
	m := New("sol", KindTrading)
	mi := m.AddItem(iron, 100, 500, 0)

	pct, label, err := m.PriceTrend("Iron")
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, TrendStable, label)

	mi.PriceHistory = []PricePoint{{1, 100}, {2, 112}}
	pct, label, _ = m.PriceTrend("Iron")
	assert.InDelta(t, 12.0, pct, 1e-9)
	assert.Equal(t, TrendSkyrocketing, label)

	_, _, err = m.PriceTrend("Gold")
	assert.True(t, errors.Is(err, tradeerr.ErrNotFound))
}

func TestLabelChange(t *testing.T) {
	cases := map[float64]Trend{
		10.5: TrendSkyrocketing, 6: TrendRising, 2: TrendIncreasing, 1: TrendStable,
		0: TrendStable, -1: TrendStable, -2: TrendDecreasing, -6: TrendFalling, -11: TrendPlummeting,
	}
	for pct, want := range cases {
		assert.Equal(t, want, LabelChange(pct), "pct %v", pct)
	}
}

func TestSpawnedEventsAndDecay(t *testing.T) {
	m := New("sol", KindTrading)
	m.AddItem(iron, 100, 500, 0)
	rng := entropy.NewSeeded(5)
	spawned := 0
	for tick := uint64(1); tick <= 2000; tick++ {
		r := m.Update(tick, rng, nil)
		spawned += len(r.Spawned)
		for _, e := range r.Spawned {
			if e.Kind.ItemScoped() {
				assert.Equal(t, "Iron", e.ItemName)
			}
		}
	}
	assert.Greater(t, spawned, 50)
	assert.Less(t, spawned, 200)
	assert.Less(t, len(m.LocalEvents), 20, "events decay")
}
