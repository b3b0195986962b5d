package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/player"
)

func TestStepFiresLayers(t *testing.T) {
	e := NewEngine()
	var ticks, hours, days []uint64
	e.OnTick = func(now uint64) { ticks = append(ticks, now) }
	e.OnHour = func(now uint64) { hours = append(hours, now) }
	e.OnDay = func(now uint64) { days = append(days, now) }

	for i := 0; i < 24*60; i++ {
		e.Step()
	}
	assert.Len(t, ticks, 24*60)
	assert.Equal(t, uint64(60), ticks[0])
	require.Len(t, hours, 24)
	assert.Equal(t, uint64(3600), hours[0])
	assert.Equal(t, []uint64{SecondsPerDay}, days)
	assert.Equal(t, uint64(SecondsPerDay), e.Now())
}

func TestStepCoarseTicksCrossHours(t *testing.T) {
	e := NewEngine()
	e.SecondsPerTick = 5400 // 1.5 hours
	var hours int
	e.OnHour = func(uint64) { hours++ }
	for i := 0; i < 4; i++ {
		e.Step()
	}
	// 5400, 10800, 16200, 21600 cross hours 1, 3, 4, 6.
	assert.Equal(t, 4, hours)
}

func TestRunStopsOnCancel(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	var mu sync.Mutex
	var n int
	e.OnTick = func(uint64) {
		mu.Lock()
		n++
		mu.Unlock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n >= 3
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestPausedEngineDoesNotTick(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)
	e.OnTick = func(uint64) { t.Error("ticked while paused") }
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, e.Now())
	assert.Equal(t, 0.0, e.Speed())
}

func TestGameTime(t *testing.T) {
	assert.Equal(t, "Year 1, Day 1, 00:00", GameTime(0))
	assert.Equal(t, "Year 1, Day 2, 01:30", GameTime(SecondsPerDay+5400))
	assert.Equal(t, "Year 2, Day 1, 00:00", GameTime(DaysPerYear*SecondsPerDay))
}

func TestGuardSerialisesWriters(t *testing.T) {
	eco := economy.New(economy.DefaultConfig(), entropy.NewSeeded(1))
	g := NewGuard(eco)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Write(func(e *economy.EconomySystem) { e.Step++ })
		}()
	}
	wg.Wait()
	var step uint64
	g.Read(func(e *economy.EconomySystem) { step = e.Step })
	assert.Equal(t, uint64(50), step)
}

func TestSimulationFeed(t *testing.T) {
	eco := economy.New(economy.DefaultConfig(), entropy.NewSeeded(3))
	ore := item.New("Ore", 40, 1, item.ResourceCategory(item.ResourceMineral))
	eco.InitializeMarket("sol", market.KindTrading).AddItem(ore, 200, 40, 0.1)
	eco.InitializeMarket("kepler", market.KindMining).AddItem(ore, 800, 40, 0.1)
	reg := player.NewRegistry()
	reg.Open("p1", "Pilot", "", 100_000, player.DefaultCapacity)
	sim := NewSimulation(eco, reg)

	var orderID string
	sim.Economy.Write(func(e *economy.EconomySystem) {
		var err error
		orderID, err = e.CreateBuyOrder("p1", "sol", "Ore", 5, 1_000, 0, 0)
		require.NoError(t, err)
	})

	id, ch := sim.Subscribe()
	sim.TickHour(1800)
	assert.Empty(t, sim.RecentEvents(10), "no tick before the interval")

	sim.TickHour(3600)
	r := sim.LastReport()
	assert.Equal(t, uint64(1), r.Step)
	require.Len(t, r.Executed(), 1)
	assert.Equal(t, orderID, r.Executed()[0].ID)

	events := sim.RecentEvents(100)
	require.NotEmpty(t, events)
	assert.Equal(t, "order", events[0].Category)
	assert.Contains(t, events[0].Description, "p1")
	got := <-ch
	assert.Equal(t, events[0], got)

	sim.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	sim.TickDay(SecondsPerDay)
}

func TestEventFeedIsBounded(t *testing.T) {
	sim := NewSimulation(economy.New(economy.DefaultConfig(), entropy.NewSeeded(1)), player.NewRegistry())
	for i := 0; i < maxEvents+20; i++ {
		sim.EmitEvent(Event{Time: uint64(i), Category: "economy"})
	}
	events := sim.RecentEvents(maxEvents * 2)
	require.Len(t, events, maxEvents)
	assert.Equal(t, uint64(20), events[0].Time)
}
