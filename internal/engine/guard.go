package engine

import (
	"sync"

	"github.com/talgya/star-exchange/internal/economy"
)

// Guard owns the process-wide economy. Ticks and trades go through Write,
// queries through Read; readers may overlap each other but never a writer.
type Guard struct {
	mu  sync.RWMutex
	eco *economy.EconomySystem
}

// NewGuard wraps an economy. The caller must not touch eco directly afterwards.
func NewGuard(eco *economy.EconomySystem) *Guard {
	return &Guard{eco: eco}
}

// Read runs fn with shared access.
func (g *Guard) Read(fn func(*economy.EconomySystem)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.eco)
}

// Write runs fn with exclusive access.
func (g *Guard) Write(fn func(*economy.EconomySystem)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.eco)
}

// Swap replaces the guarded economy, as after loading a snapshot.
func (g *Guard) Swap(eco *economy.EconomySystem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eco = eco
}
