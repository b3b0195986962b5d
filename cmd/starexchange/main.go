// Command starexchange runs the Star Exchange market simulation and its API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/star-exchange/internal/api"
	"github.com/talgya/star-exchange/internal/config"
	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/engine"
	"github.com/talgya/star-exchange/internal/entropy"
	"github.com/talgya/star-exchange/internal/galaxy"
	"github.com/talgya/star-exchange/internal/persistence"
	"github.com/talgya/star-exchange/internal/player"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("Star Exchange: galactic market simulation", "seed", cfg.Seed, "systems", cfg.Systems)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Generate Economy ─────────────────────────────────────
	rng := entropy.FromConfig(cfg.RandomOrgKey, cfg.Seed)
	eco, clock := loadOrGenerate(db, cfg, rng)

	accounts := player.NewRegistry()
	if err := db.LoadAccounts(accounts); err != nil {
		slog.Error("failed to load accounts", "error", err)
	}
	slog.Info("accounts loaded", "count", len(accounts.All()))

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(eco, accounts)

	// Save on fresh generation only (loaded economies are already saved).
	if clock == 0 {
		if err := db.SaveSimulation(sim, 0); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.TickInterval
	eng.SecondsPerTick = cfg.SecondsPerTick
	eng.Tick = clock / cfg.SecondsPerTick

	lastSave := clock
	eng.OnHour = func(now uint64) {
		sim.TickHour(now)
		if now-lastSave < cfg.SaveEvery {
			return
		}
		if err := db.SaveSimulation(sim, now); err != nil {
			slog.Error("autosave failed", "error", err)
			return
		}
		lastSave = now
	}
	eng.OnDay = sim.TickDay

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("STAR_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Port:        cfg.APIPort,
		AdminKey:    cfg.AdminKey,
		RelayKey:    cfg.RelayKey,
		CORSOrigins: cfg.CORSOrigins,
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nStar Exchange is open: %d markets, %d traders.\n", len(eco.Markets), len(accounts.All()))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if clock > 0 {
		fmt.Printf("Resuming at %s\n", engine.GameTime(clock))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return apiServer.ListenAndServe(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "cause", context.Cause(gctx))
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("service stopped with error", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveSimulation(sim, eng.Now()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Economy saved.")
}

// loadOrGenerate restores the saved economy, or builds a fresh galaxy when
// none exists or the save cannot be read. It returns the game clock to
// resume from.
func loadOrGenerate(db *persistence.DB, cfg config.Config, rng entropy.Source) (*economy.EconomySystem, uint64) {
	has, err := db.HasEconomyState()
	if err != nil {
		slog.Error("failed to check for saved economy", "error", err)
	}
	if has {
		slog.Info("found saved economy, loading...")
		eco, err := db.LoadEconomy(cfg.Economy(), rng)
		if err == nil {
			clock, err := db.LoadClock()
			if err != nil {
				slog.Warn("saved clock unreadable, resuming from the economy's last update", "error", err)
				clock = eco.LastUpdate
			}
			slog.Info("economy restored", "markets", len(eco.Markets), "step", eco.Step, "time", engine.GameTime(clock))
			return eco, clock
		}
		slog.Error("failed to load economy, generating a fresh galaxy", "error", err)
	}

	slog.Info("generating galaxy...")
	systems := galaxy.Generate(cfg.Galaxy())
	for kind, n := range galaxy.KindCounts(systems) {
		slog.Info("systems", "kind", kind.String(), "count", n)
	}
	eco := economy.New(cfg.Economy(), rng)
	galaxy.Populate(eco, systems, cfg.Seed)
	return eco, 0
}
