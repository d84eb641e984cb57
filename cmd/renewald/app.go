package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/config"
	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/logging"
	"github.com/warp/renewal-engine/rights"
	"github.com/warp/renewal-engine/scheduler"
	"github.com/warp/renewal-engine/store/sqlite"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  generic.Clock
	store  *sqlite.Store
	rights *rights.Service
	roller *scheduler.RenewalRoller
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging)

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.Path, err)
	}

	presenter, err := rights.NewPresenter(cfg.Units.CacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	clock := generic.RealClock{}
	aggregator := beneficiary.NewAggregator(clock, logger)
	aggregator.MaxConcurrency = cfg.Stats.MaxConcurrency

	retry := rights.RetryConfig{
		MaxRetries:     cfg.Stats.MaxRetries,
		BaseDelay:      config.Duration(cfg.Stats.RetryDelay),
		MaxDelay:       config.Duration(cfg.Stats.MaxRetryDelay),
		AttemptTimeout: config.Duration(cfg.Stats.FetchTimeout),
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		store:  store,
		rights: rights.NewService(store, generic.NewLedger(store), presenter, aggregator, retry, logger),
		roller: scheduler.NewRenewalRoller(store, clock, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
