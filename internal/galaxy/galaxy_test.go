package galaxy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/market"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a := Generate(cfg)
	b := Generate(cfg)
	assert.Equal(t, a, b)
	require.Len(t, a, cfg.Systems)
}

func TestGenerateAlwaysHasSol(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 99} {
		systems := Generate(GenConfig{Systems: 12, Seed: seed, Radius: 40})
		require.NotEmpty(t, systems)
		sol := systems[0]
		assert.Equal(t, HomeID, sol.ID)
		assert.Equal(t, market.KindTrading, sol.Kind)
		assert.Zero(t, sol.X)
		assert.Zero(t, sol.Y)
	}
}

func TestGenerateWithinRadius(t *testing.T) {
	cfg := GenConfig{Systems: 40, Seed: 7, Radius: 30}
	systems := Generate(cfg)
	sol := systems[0]
	ids := make(map[string]bool)
	names := make(map[string]bool)
	for _, s := range systems {
		assert.LessOrEqual(t, sol.Distance(s), cfg.Radius+1e-9, s.Name)
		assert.False(t, ids[s.ID], "duplicate id %s", s.ID)
		assert.False(t, names[s.Name], "duplicate name %s", s.Name)
		ids[s.ID], names[s.Name] = true, true
		assert.GreaterOrEqual(t, s.Minerals, 0.0)
		assert.LessOrEqual(t, s.Minerals, 1.0)
	}
}

func TestNearest(t *testing.T) {
	systems := Generate(SmallTestConfig())
	near := Nearest(systems[0], systems)
	require.Len(t, near, len(systems)-1)
	for i := 1; i < len(near); i++ {
		assert.LessOrEqual(t, systems[0].Distance(near[i-1]), systems[0].Distance(near[i]))
	}
	assert.Len(t, ByID(systems), len(systems))
}

func TestPopulate(t *testing.T) {
	systems := Generate(SmallTestConfig())
	eco := economy.New(economy.DefaultConfig(), entropy.NewSeeded(1))
	Populate(eco, systems, 42)

	require.Len(t, eco.Markets, len(systems))
	sol, err := eco.Market(HomeID)
	require.NoError(t, err)
	assert.Len(t, sol.Items, len(Catalog()), "Sol stocks the whole catalogue")

	for _, s := range systems {
		m := eco.Markets[s.ID]
		assert.Equal(t, s.Kind, m.Kind)
		assert.NotEmpty(t, m.Items, s.ID)
		for name, mi := range m.Items {
			assert.Positive(t, mi.Quantity, "%s/%s", s.ID, name)
			assert.Positive(t, mi.CurrentPrice, "%s/%s", s.ID, name)
		}
	}
}

func TestSeedMarketKinds(t *testing.T) {
	military := market.New("fort", market.KindMilitary)
	SeedMarket(military, System{Industry: 0.5, Minerals: 0.5}, rand.New(rand.NewSource(1)))
	_, hasRations := military.Item("Rations")
	_, hasOre := military.Item("Iron Ore")
	assert.True(t, hasRations)
	assert.False(t, hasOre)
}

func TestLookup(t *testing.T) {
	g, ok := Lookup("Fuel Cell")
	require.True(t, ok)
	assert.Equal(t, uint32(60), g.BasePrice)
	_, ok = Lookup("Unobtainium")
	assert.False(t, ok)
}
