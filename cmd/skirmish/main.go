// Package main provides the scenario runner: it plays a YAML encounter
// through the combat engine, prints each resolved action and optionally
// persists snapshots to PostgreSQL and Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/config"
	skerr "github.com/cory-johannsen/skirmish/internal/errors"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/condition"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scenario"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/storage/cache"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and SKIRMISH_* variables")
	scenarioPath := flag.String("scenario", "", "path to the scenario YAML file")
	resume := flag.String("resume", "", "encounter id to restore from the snapshot stores before playing the scenario's actions")
	reactions := flag.String("reactions", "always", "reaction policy: always or never")
	seed := flag.Uint64("seed", 0, "dice seed; 0 uses the scenario's seed, or crypto randomness when that is 0 too")
	flag.Parse()

	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	if *scenarioPath == "" {
		log.Fatal("-scenario is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger, options{
		scenario:  *scenarioPath,
		resume:    *resume,
		reactions: *reactions,
		seed:      *seed,
	}); err != nil {
		logger.Error("scenario failed", zap.Error(err), zap.String("code", string(skerr.GetCode(err))))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("scenario complete", zap.Duration("elapsed", time.Since(start)))
}

type options struct {
	scenario  string
	resume    string
	reactions string
	seed      uint64
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, opts options) error {
	sc, err := scenario.Load(opts.scenario)
	if err != nil {
		return err
	}

	policy, err := reactionPolicy(opts.reactions)
	if err != nil {
		return err
	}

	scripts := scripting.NewManager(observability.Component(logger, "scripting"), cfg.Scripting.InstructionLimit)
	if cfg.Scripting.AbilitiesDir != "" {
		n, err := scripts.LoadDir(cfg.Scripting.AbilitiesDir)
		if err != nil {
			return err
		}
		logger.Info("abilities loaded", zap.Int("count", n), zap.String("dir", cfg.Scripting.AbilitiesDir))
	}
	catalog, err := condition.Load(scripts, cfg.Scripting.ConditionsDir)
	if err != nil {
		return err
	}

	s := opts.seed
	if s == 0 {
		s = sc.Seed
	}
	src := dice.NewCryptoSource()
	if s != 0 {
		src = dice.NewSeededSource(s)
	}

	engine := combat.NewEngine(combat.Deps{
		Dice:    dice.NewLoggedRoller(src, observability.Component(logger, "dice")),
		Scripts: scripts,
		Catalog: catalog,
		Policy:  policy,
		Logger:  observability.Component(logger, "combat"),
		Config: combat.Config{
			InstructionLimit:    cfg.Scripting.InstructionLimit,
			ReactionConcurrency: cfg.Engine.ReactionConcurrency,
			CriticalThreshold:   cfg.Engine.CriticalThreshold,
		},
	})

	var (
		stores []scenario.Store
		repo   *postgres.SnapshotRepository
		hot    *cache.SnapshotCache
	)
	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, cfg.Database, observability.Component(logger, "storage"))
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = postgres.NewSnapshotRepository(pool.DB())
		stores = append(stores, repo)
	}
	if cfg.Redis.Enabled {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		hot = cache.NewSnapshotCache(client, cfg.Redis.TTL)
		stores = append(stores, hot)
	}

	runner := scenario.NewRunner(engine, scripts, observability.Component(logger, "scenario"), stores...)
	if repo != nil {
		runner.WithEventLog(repo)
	}

	if opts.resume == "" {
		_, err := runner.Run(ctx, sc, os.Stdout)
		return err
	}

	data, err := loadSnapshot(ctx, opts.resume, hot, repo)
	if err != nil {
		return err
	}
	enc, err := runner.Restore(ctx, opts.resume, data)
	if err != nil {
		return err
	}
	_, err = runner.Play(ctx, enc, sc.Actions, os.Stdout)
	return err
}

// loadSnapshot prefers the cache and falls back to the database.
func loadSnapshot(ctx context.Context, id string, hot *cache.SnapshotCache, repo *postgres.SnapshotRepository) (map[string]any, error) {
	if hot != nil {
		data, err := hot.Load(ctx, id)
		if err == nil {
			return data, nil
		}
		if !skerr.IsNotFound(err) {
			return nil, err
		}
	}
	if repo != nil {
		snap, err := repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		return snap.Data, nil
	}
	return nil, errors.New("resuming needs database or redis to be enabled")
}

func reactionPolicy(name string) (combat.ReactionPolicy, error) {
	switch name {
	case "always":
		return combat.AlwaysReact, nil
	case "never":
		return combat.NeverReact, nil
	}
	return nil, fmt.Errorf("unknown reaction policy %q: must be always or never", name)
}
