package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/agent"
	"github.com/auto-dns/docker-fleet-updater/internal/api"
	"github.com/auto-dns/docker-fleet-updater/internal/config"
	"github.com/auto-dns/docker-fleet-updater/internal/core"
	"github.com/auto-dns/docker-fleet-updater/internal/notify"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/auto-dns/docker-fleet-updater/internal/scheduler"
	"github.com/auto-dns/docker-fleet-updater/internal/settings"
	"github.com/auto-dns/docker-fleet-updater/internal/store"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type App struct {
	cfg          *config.Config
	store        store.Store
	registry     *agent.Registry
	cache        *progress.Cache
	orchestrator *core.Orchestrator
	scheduler    *scheduler.Manager
	server       *http.Server
	logger       zerolog.Logger
}

// New creates a new App by wiring up all dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	st, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Agents and progress
	registry := agent.NewRegistry(cfg.Agent.LongTimeout, logger.With().Str("component", "agent").Logger())
	cache := progress.New(cfg.App.ProgressTTL, cfg.App.ProgressSize)

	// Orchestrator
	s := settings.New(nil)
	notifier := notify.New(s, logger.With().Str("component", "notify").Logger())
	orch := core.New(logger, core.RegistryClients(registry), st, notifier, cache, core.Options{
		LabelPrefix:        cfg.App.LabelPrefix,
		HealthPollInterval: cfg.App.HealthPollInterval,
		MaxParallelHosts:   cfg.App.MaxParallelHosts,
	})
	sched := scheduler.NewManager(logger.With().Str("component", "scheduler").Logger(), orch, s)

	// HTTP API
	handler := api.NewHandler(
		logger.With().Str("component", "api").Logger(),
		cfg.App.LabelPrefix,
		st,
		orch,
		cache,
		api.RegistryAgents(registry),
		s,
		sched,
		notifier,
	)
	server := &http.Server{
		Addr:              cfg.App.ListenAddr,
		Handler:           api.NewContainer(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:          cfg,
		store:        st,
		registry:     registry,
		cache:        cache,
		orchestrator: orch,
		scheduler:    sched,
		server:       server,
		logger:       logger,
	}, nil
}

func newStore(cfg *config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "etcd":
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		return store.NewEtcdStore(etcdClient, &cfg.Etcd, logger), nil
	case "memory", "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Run loads the hosts, starts the scheduler and serves the API until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")

	if err := a.loadHosts(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer a.scheduler.Stop()
	a.watchConfig()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Msgf("API listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	a.logger.Info().Msg("Application stopped")
	return nil
}

// loadHosts creates the configured hosts that are not stored yet and registers an agent
// client for every enabled host.
func (a *App) loadHosts(ctx context.Context) error {
	stored, err := a.store.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, h := range stored {
		known[h.Name] = struct{}{}
	}
	for _, seed := range a.cfg.Hosts {
		if _, ok := known[seed.Name]; ok {
			continue
		}
		h, err := a.store.CreateHost(ctx, seed.Host())
		if err != nil {
			return fmt.Errorf("seed host %s: %w", seed.Name, err)
		}
		a.logger.Info().Msgf("Seeded host %s (%d)", h.Name, h.ID)
		stored = append(stored, h)
		known[h.Name] = struct{}{}
	}
	a.registry.Sync(stored)
	a.logger.Info().Msgf("Registered %d agent clients", a.registry.Len())
	return nil
}

// watchConfig reschedules the jobs when the config file changes. Notification settings
// are read at send time and need no reload.
func (a *App) watchConfig() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		a.logger.Info().Msgf("Config file %s changed", e.Name)
		if err := a.scheduler.Reschedule(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to reschedule after config change")
		}
	})
	viper.WatchConfig()
}

// Close waits for runs in progress and releases every client.
func (a *App) Close() error {
	a.orchestrator.Wait()
	a.registry.Close()
	a.cache.Close()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
