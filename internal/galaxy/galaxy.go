// Galaxy generation using layered simplex noise.
// Scatters star systems over a disc, samples mineral, industry, and population
// fields at each one, and derives the kind of market it hosts.
package galaxy

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/star-exchange/internal/market"
)

// HomeID is the trading hub every galaxy contains.
const HomeID = "sol"

// maxSystems stays well under the number of distinct generated names.
const maxSystems = 500

// GenConfig holds galaxy generation parameters.
type GenConfig struct {
	Systems int     // Star systems including Sol
	Seed    int64   // Random seed (0 = random)
	Radius  float64 // Light years from Sol to the rim
}

// DefaultGenConfig returns a mid-sized sector.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Systems: 24,
		Seed:    0,
		Radius:  60,
	}
}

// SmallTestConfig returns a handful of systems for quick runs.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Systems: 6,
		Seed:    42,
		Radius:  20,
	}
}

// System is one generated star system.
type System struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Kind       market.Kind `json:"kind"`
	Minerals   float64     `json:"minerals"`   // 0–1
	Industry   float64     `json:"industry"`   // 0–1
	Population float64     `json:"population"` // 0–1
}

// Distance is the straight-line distance to another system.
func (s System) Distance(o System) float64 {
	return math.Hypot(s.X-o.X, s.Y-o.Y)
}

// Generate creates the star systems of a galaxy. The same seed always yields
// the same galaxy. Sol sits at the origin and always hosts a trading market.
func Generate(cfg GenConfig) []System {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	// Three noise generators for independent layers.
	minerals := opensimplex.NewNormalized(seed)
	industry := opensimplex.NewNormalized(seed + 1)
	people := opensimplex.NewNormalized(seed + 2)

	systems := []System{{
		ID:         HomeID,
		Name:       "Sol",
		Kind:       market.KindTrading,
		Minerals:   octaveNoise(minerals, 0, 0, 3, 0.05, 0.5),
		Industry:   octaveNoise(industry, 0, 0, 3, 0.04, 0.5),
		Population: 1,
	}}

	want := min(cfg.Systems, maxSystems)
	names := map[string]bool{"Sol": true}
	for len(systems) < want {
		// Uniform over the disc.
		r := cfg.Radius * math.Sqrt(rng.Float64())
		theta := rng.Float64() * 2 * math.Pi
		x, y := r*math.Cos(theta), r*math.Sin(theta)

		name := systemName(rng)
		if names[name] {
			continue
		}
		names[name] = true

		sys := System{
			ID:         fmt.Sprintf("sys-%02d", len(systems)),
			Name:       name,
			X:          x,
			Y:          y,
			Minerals:   octaveNoise(minerals, x, y, 3, 0.05, 0.5),
			Industry:   octaveNoise(industry, x, y, 3, 0.04, 0.5),
			Population: octaveNoise(people, x, y, 2, 0.03, 0.5),
		}
		// Frontier systems are sparser and lawless.
		sys.Population *= 1 - 0.5*r/cfg.Radius
		sys.Kind = deriveKind(sys, rng)
		systems = append(systems, sys)
	}
	return systems
}

// deriveKind picks a market kind from a system's fields.
func deriveKind(s System, rng *rand.Rand) market.Kind {
	switch {
	case s.Population < 0.2 && rng.Float64() < 0.5:
		return market.KindBlack
	case s.Industry > 0.65 && s.Population > 0.5:
		return market.KindHighTech
	case s.Industry > 0.55:
		return market.KindIndustrial
	case s.Minerals > 0.55:
		return market.KindMining
	case s.Population > 0.6:
		return market.KindTrading
	case s.Minerals < 0.35 && s.Industry < 0.4:
		return market.KindAgricultural
	case rng.Float64() < 0.15:
		return market.KindMilitary
	default:
		return market.KindTrading
	}
}

var (
	namePrefixes = []string{"Al", "Bel", "Cor", "Dra", "Eri", "Fom", "Gal", "Hy", "Ik", "Ka", "Lyr", "Mir", "No", "Ori", "Pol", "Rig", "Sir", "Tau", "Veg", "Zan"}
	nameSuffixes = []string{"ara", "on", "ix", "eth", "us", "ia", "or", "ane", "is", "ek"}
)

func systemName(rng *rand.Rand) string {
	name := namePrefixes[rng.Intn(len(namePrefixes))] + nameSuffixes[rng.Intn(len(nameSuffixes))]
	if rng.Intn(3) == 0 {
		name += fmt.Sprintf(" %d", 2+rng.Intn(8))
	}
	return name
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// KindCounts returns a summary of market kind distribution.
func KindCounts(systems []System) map[market.Kind]int {
	counts := make(map[market.Kind]int)
	for _, s := range systems {
		counts[s.Kind]++
	}
	return counts
}

// ByID indexes systems by id.
func ByID(systems []System) map[string]System {
	out := make(map[string]System, len(systems))
	for _, s := range systems {
		out[s.ID] = s
	}
	return out
}

// Nearest returns the other systems ordered by distance from s.
func Nearest(s System, systems []System) []System {
	out := make([]System, 0, len(systems))
	for _, o := range systems {
		if o.ID != s.ID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.Distance(out[i]) < s.Distance(out[j]) })
	return out
}
