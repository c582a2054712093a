// Command ecsbench drives an entity store through a configurable number of system runs with entity
// churn and reports per-system timings. It is a soak harness for the store, not a benchmark suite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/argus-labs/ecstore/pkg/ecs"
	"github.com/argus-labs/ecstore/pkg/ecs/cql"
	"github.com/argus-labs/ecstore/pkg/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type benchConfig struct {
	// Entities spawned by the init system and kept alive by the spawner.
	Entities int `env:"ECSBENCH_ENTITIES" envDefault:"10000"`

	// Number of system runs.
	Runs int `env:"ECSBENCH_RUNS" envDefault:"100"`

	// Health lost per run by every entity. Entities at zero health are deleted and respawned.
	Decay int `env:"ECSBENCH_DECAY" envDefault:"7"`

	// Query printed at the end, in the text query language.
	Query string `env:"ECSBENCH_QUERY" envDefault:"CONTAINS(position, velocity) & !CONTAINS(frozen)"`

	// Expression evaluated over the final population.
	Where string `env:"ECSBENCH_WHERE" envDefault:"health.HP > 50"`
}

func loadBenchConfig() (benchConfig, error) {
	cfg := benchConfig{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse bench config")
	}
	if cfg.Entities <= 0 {
		return cfg, eris.New("entity count must be positive")
	}
	if cfg.Runs < 0 {
		return cfg, eris.New("run count cannot be negative")
	}
	if cfg.Decay <= 0 {
		return cfg, eris.New("decay must be positive")
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("ecsbench failed")
	}
}

func run(ctx context.Context) error {
	cfg, err := loadBenchConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.Options{ServiceName: "ecsbench"})
	if err != nil {
		return eris.Wrap(err, "failed to setup telemetry")
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()
	logger := tel.GetLogger("bench")

	reg := ecs.NewRegistry()
	types, err := registerTypes(reg)
	if err != nil {
		return err
	}

	storeLogger := tel.GetLogger("store")
	store, err := ecs.NewStore(reg, ecs.StoreOptions{EntityCapacity: cfg.Entities, Logger: &storeLogger})
	if err != nil {
		return eris.Wrap(err, "failed to create store")
	}

	systemsLogger := tel.GetLogger("systems")
	manager, err := ecs.NewSystemManager(store, ecs.SystemManagerOptions{
		Tracer: tel.Tracer,
		Statsd: tel.Statsd,
		Logger: &systemsLogger,
	})
	if err != nil {
		return eris.Wrap(err, "failed to create system manager")
	}
	if err := registerSystems(manager, types, cfg); err != nil {
		return err
	}

	for i := range cfg.Runs {
		if ctx.Err() != nil {
			logger.Info().Int("completed", i).Msg("interrupted")
			break
		}
		if err := manager.Run(ctx); err != nil {
			return eris.Wrapf(err, "run %d failed", i)
		}
	}

	return report(logger, store, manager, cfg)
}

func report(logger zerolog.Logger, store *ecs.Store, manager *ecs.SystemManager, cfg benchConfig) error {
	logger.Info().
		Int("entities", store.Len()).
		Int("archetypes", store.ArchetypeCount()).
		Uint64("runs", manager.Runs()).
		Msg("finished")

	for _, name := range systemNames {
		stats, ok := manager.Stats(name)
		if !ok {
			continue
		}
		logger.Info().
			Str("system", name).
			Uint64("count", stats.Count).
			Dur("mean", stats.Mean()).
			Dur("max", stats.Max).
			Dur("total", stats.Total).
			Msg("system timing")
	}

	f, err := cql.Parse(cfg.Query, store.Registry().Lookup)
	if err != nil {
		return eris.Wrap(err, "invalid bench query")
	}
	selection, err := ecs.NewFilterQuery(store, f).Where(cfg.Where)
	if err != nil {
		return eris.Wrap(err, "invalid bench expression")
	}
	n, err := selection.Count()
	if err != nil {
		return eris.Wrap(err, "failed to evaluate bench expression")
	}
	logger.Info().Str("query", cfg.Query).Str("where", cfg.Where).Int("matches", n).Msg("query")
	return nil
}
