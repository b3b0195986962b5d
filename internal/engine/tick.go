// Package engine provides the tick-based game clock that drives the economy,
// the lock that serialises access to it, and a feed of notable trade events.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Game-time units, in seconds.
const (
	SecondsPerHour = 3600
	SecondsPerDay  = 24 * SecondsPerHour
	DaysPerYear    = 360
)

// DefaultSecondsPerTick makes one tick a game minute.
const DefaultSecondsPerTick = 60

// Engine drives the game clock forward.
type Engine struct {
	Tick           uint64        // Current tick counter (monotonic, never resets)
	Interval       time.Duration // Base tick interval (default 1 second)
	SecondsPerTick uint64        // Game seconds per tick

	// Callbacks for each tick layer, populated during setup. Each receives
	// the game clock in seconds.
	OnTick func(now uint64) // Every tick
	OnHour func(now uint64) // Each time the clock crosses an hour
	OnDay  func(now uint64) // Each time the clock crosses a day

	mu    sync.Mutex
	speed float64 // Multiplier: 1.0 = real-time, 0 = paused
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval:       time.Second,
		SecondsPerTick: DefaultSecondsPerTick,
		speed:          1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the clock.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
}

// Now is the game clock in seconds.
func (e *Engine) Now() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Tick * e.SecondsPerTick
}

// Run advances the clock until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("game clock started", "tick", e.Tick, "speed", e.Speed(), "time", GameTime(e.Now()))
	defer func() { slog.Info("game clock stopped", "tick", e.Tick, "time", GameTime(e.Now())) }()

	for {
		speed := e.Speed()
		wait := 100 * time.Millisecond
		if speed > 0 {
			start := time.Now()
			e.Step()
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(start)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(max(wait, 0)):
		}
	}
}

// Step advances the clock by one tick and fires the callbacks it crosses.
func (e *Engine) Step() {
	e.mu.Lock()
	prev := e.Tick * e.SecondsPerTick
	e.Tick++
	now := e.Tick * e.SecondsPerTick
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(now)
	}
	if e.OnHour != nil && now/SecondsPerHour > prev/SecondsPerHour {
		e.OnHour(now)
	}
	if e.OnDay != nil && now/SecondsPerDay > prev/SecondsPerDay {
		e.OnDay(now)
	}
}

// GameTime renders a game clock reading as "Year 1, Day 1, 00:00".
func GameTime(now uint64) string {
	totalMinutes := now / 60
	minutes := totalMinutes % 60
	totalHours := totalMinutes / 60
	hours := totalHours % 24
	totalDays := totalHours / 24
	day := totalDays%DaysPerYear + 1
	year := totalDays/DaysPerYear + 1

	return fmt.Sprintf("Year %d, Day %d, %02d:%02d", year, day, hours, minutes)
}
