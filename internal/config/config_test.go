package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, uint64(60), cfg.SecondsPerTick)
	assert.Equal(t, uint64(3600), cfg.Economy().UpdateInterval)
	assert.Equal(t, 24, cfg.Galaxy().Systems)
	assert.Empty(t, cfg.AdminKey)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(map[string]string{
		"STAR_SEED":             "7",
		"STAR_API_PORT":         "9000",
		"STAR_ADMIN_KEY":        "secret",
		"STAR_TICK_INTERVAL":    "250ms",
		"STAR_ECONOMY_INTERVAL": "600",
		"STAR_CORS_ORIGINS":     "https://a.example,https://b.example",
		"SEED":                  "99",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed, "only prefixed variables count")
	assert.Equal(t, 9000, cfg.APIPort)
	assert.Equal(t, "secret", cfg.AdminKey)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, uint64(600), cfg.Economy().UpdateInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, int64(7), cfg.Galaxy().Seed)
}

func TestParseRejects(t *testing.T) {
	for name, environ := range map[string]map[string]string{
		"bad int":        {"STAR_API_PORT": "eighty"},
		"zero tick":      {"STAR_SECONDS_PER_TICK": "0"},
		"no systems":     {"STAR_SYSTEMS": "0"},
		"zero interval":  {"STAR_ECONOMY_INTERVAL": "0"},
		"bad duration":   {"STAR_TICK_INTERVAL": "soon"},
		"zero real tick": {"STAR_TICK_INTERVAL": "0s"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parse(environ)
			assert.Error(t, err)
		})
	}
}
