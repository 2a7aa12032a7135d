package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scopeworks/scout/pkg/adapters"
	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/executor"
	"github.com/scopeworks/scout/pkg/llms"
	"github.com/scopeworks/scout/pkg/metrics"
	"github.com/scopeworks/scout/pkg/scope"
	"github.com/scopeworks/scout/pkg/store"
	"github.com/scopeworks/scout/pkg/strategy"
)

// app holds the wired runtime shared by serve and run.
type app struct {
	cfg      *config.Config
	cache    *strategy.Cache
	store    *store.Store // nil on the file driver
	executor *executor.Executor
	logger   *slog.Logger
}

// buildApp wires the strategy cache, providers, adapters and executor from
// configuration. The caller owns app.Close.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()

	var source strategy.Source
	var st *store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		opened, err := store.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		st = opened
		source = opened
	case "file":
		source = strategy.FileSource{Dir: cfg.Store.StrategiesDir}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	cache, err := strategy.Load(ctx, source)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("failed to load strategies: %w", err)
	}

	providers, err := llms.BuildRegistry(cfg.LLM)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	registry, err := buildAdapters(cfg, providers, cache, logger)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	emitter, err := metrics.InitEmitter(cfg.Metrics.Enabled)
	if err != nil {
		closeStore(st)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	classifier := scope.NewClassifier(providers, cache.Settings(), cache, logger)
	exec := executor.New(cache, registry, providers, classifier, emitter, cfg.Executor, logger)

	logger.Info("Runtime ready",
		"strategies", len(cache.Index()),
		"store", cfg.Store.Driver,
		"metrics", cfg.Metrics.Enabled)

	return &app{
		cfg:      cfg,
		cache:    cache,
		store:    st,
		executor: exec,
		logger:   logger,
	}, nil
}

func buildAdapters(cfg *config.Config, providers *llms.Registry, cache *strategy.Cache, logger *slog.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()

	if cfg.Providers.Sonar.APIKey != "" {
		sonar, err := adapters.NewSonarAdapter(cfg.Providers.Sonar)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(sonar.Name(), sonar); err != nil {
			return nil, err
		}
	}
	if cfg.Providers.Exa.APIKey != "" {
		exa, err := adapters.NewExaAdapter(cfg.Providers.Exa)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(exa.Name(), exa); err != nil {
			return nil, err
		}
	}

	fetch := adapters.NewFetchAdapter(cfg.Providers.Fetch)
	if err := registry.Register(fetch.Name(), fetch); err != nil {
		return nil, err
	}

	analyzer := adapters.NewLLMAnalyzer(providers, cache.Settings(), logger)
	if err := registry.Register(analyzer.Name(), analyzer); err != nil {
		return nil, err
	}

	registry.Freeze()
	return registry, nil
}

func (a *app) Close() {
	closeStore(a.store)
}

func closeStore(st *store.Store) {
	if st != nil {
		_ = st.Close()
	}
}
