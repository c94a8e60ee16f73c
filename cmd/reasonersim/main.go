// Command reasonersim runs the utility reasoner simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/mini-reasoner/internal/agents"
	"github.com/talgya/mini-reasoner/internal/api"
	"github.com/talgya/mini-reasoner/internal/clock"
	"github.com/talgya/mini-reasoner/internal/config"
	"github.com/talgya/mini-reasoner/internal/engine"
	"github.com/talgya/mini-reasoner/internal/entropy"
	"github.com/talgya/mini-reasoner/internal/notify"
	"github.com/talgya/mini-reasoner/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults to the built-in demo)")
	ticks := flag.Uint64("ticks", 0, "run this many ticks headless and exit (0 = run until interrupted)")
	noAPI := flag.Bool("no-api", false, "do not start the HTTP API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("mini-reasoner starting",
		"agents", len(cfg.Scenario.Agents),
		"step", cfg.StepSeconds,
		"interval_ms", cfg.TickIntervalMS,
	)

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Database.Path != "" {
		db, err = openJournal(cfg.Database.Path)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database.Path)
	}

	// ── Agents ────────────────────────────────────────────────────────
	clk := clock.NewSim(0)
	source := entropy.FromConfig(cfg.RandomOrgKey, cfg.Seed)
	spawned, err := agents.NewSpawner(clk, source, cfg.Seed).Spawn(cfg.Scenario)
	if err != nil {
		slog.Error("failed to build agents", "error", err)
		os.Exit(1)
	}

	sim := engine.NewSimulation(spawned, clk)
	eng := engine.NewEngine(clk, cfg.StepSeconds, time.Duration(cfg.TickIntervalMS)*time.Millisecond)
	eng.SetSpeed(cfg.Speed)
	eng.ReportEvery = cfg.SaveEvery

	if db != nil && db.HasSavedState() {
		slog.Info("found saved state, resuming...")
		tick, err := db.RestoreSimulation(sim, clk)
		if err != nil {
			slog.Error("failed to restore simulation", "error", err)
			os.Exit(1)
		}
		eng.Tick = tick
	}

	// Report and save together.
	eng.OnTick = sim.Tick
	eng.OnReport = func(tick uint64) {
		sim.Report(tick)
		if db != nil {
			if err := db.SaveSimulation(sim); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
	}

	// ── Redis ─────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := notify.NewPublisher(cfg)
	if publisher != nil {
		if err := publisher.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, transitions will not be published", "addr", cfg.Redis.Addr, "error", err)
		}
		events := sim.Subscribe()
		go publisher.Run(ctx, events)
		defer publisher.Close()
		defer sim.Unsubscribe(events)
		slog.Info("publishing transitions to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	}

	// ── Headless run ──────────────────────────────────────────────────
	if *ticks > 0 {
		eng.RunTicks(*ticks)
		finalSave(db, sim)
		for _, st := range sim.AgentStates() {
			fmt.Printf("%s (active: %s)\n%s", st.Name, st.Active, st.Summary)
		}
		return
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if !*noAPI {
		if cfg.API.AdminKey == "" {
			slog.Warn("REASONER_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer := &api.Server{
			Sim:         sim,
			Eng:         eng,
			DB:          db,
			Port:        cfg.API.Port,
			AdminKey:    cfg.API.AdminKey,
			RelayKey:    cfg.API.RelayKey,
			CORSOrigins: cfg.API.CORSOrigins,
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	if eng.Tick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", eng.Tick, engine.FormatSimTime(clk.Now()))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	finalSave(db, sim)
	fmt.Println("Simulation stopped.")
}

// openJournal opens the SQLite journal, creating its directory first.
func openJournal(path string) (*persistence.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return persistence.Open(path)
}

func finalSave(db *persistence.DB, sim *engine.Simulation) {
	if db == nil {
		return
	}
	slog.Info("final save...")
	if err := db.SaveSimulation(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
}
