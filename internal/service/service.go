// Package service assembles a running launchpad process from its
// configuration: the engine with in-process collaborators, the event bus,
// the indexer, and the optional HTTP surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/launchpad/internal/api"
	"github.com/rovshanmuradov/launchpad/internal/config"
	"github.com/rovshanmuradov/launchpad/internal/currency"
	"github.com/rovshanmuradov/launchpad/internal/engine"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/indexer"
	"github.com/rovshanmuradov/launchpad/internal/metrics"
	"github.com/rovshanmuradov/launchpad/internal/registry"
	"github.com/rovshanmuradov/launchpad/internal/scenario"
	"github.com/rovshanmuradov/launchpad/internal/social"
	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/memory"
	"github.com/rovshanmuradov/launchpad/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

// Service owns every long-lived component of the process.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Collector
	bus       *events.Bus
	store     storage.Storage
	engine    *engine.Engine
	directory *social.Directory
	bank      *currency.Bank
	clock     *wallClock
	stream    *api.Stream
	api       *api.Server

	shutdown *ShutdownHandler
}

// New wires the components described by cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		directory: social.NewDirectory(),
		bank:      currency.NewBank(logger.Named("bank")),
		clock:     newWallClock(),
		shutdown:  NewShutdownHandler(logger.Named("shutdown")),
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.NewCollector(s.registry)

	store, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.shutdown.Add("storage", store)

	s.bus = events.NewBus(logger, cfg.Indexer.BufferSize, events.WithPublishTimeout(cfg.Indexer.PublishTimeout))
	s.shutdown.AddFunc("event bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.bus.Shutdown(ctx)
	})
	s.bus.Subscribe(events.AllEvents, s.metrics)
	s.bus.Subscribe(events.AllEvents, indexer.New(store, indexer.Options{
		MaxRetries:      cfg.Indexer.MaxRetries,
		InitialInterval: cfg.Indexer.InitialInterval,
		MaxInterval:     cfg.Indexer.MaxInterval,
	}, s.metrics, logger))

	exCfg, err := exchange.New(cfg.AdminAddress(), cfg.ExchangeParams())
	if err != nil {
		return nil, fmt.Errorf("exchange config: %w", err)
	}
	s.engine, err = engine.New(engine.Options{
		Config:            exCfg,
		Registry:          registry.New(),
		Payer:             s.bank,
		BlockList:         s.directory,
		Treasury:          s.directory,
		Posts:             s.directory,
		Profiles:          s.directory,
		Publisher:         s.bus,
		Platform:          cfg.Platform,
		EcosystemTreasury: cfg.EcosystemTreasuryAddress(),
		Metrics:           s.metrics,
		Logger:            logger,
		Clock:             s.clock.Now,
	})
	if err != nil {
		return nil, err
	}

	if cfg.API.Enabled {
		s.stream = api.NewStream(api.DefaultStreamConfig(), logger)
		s.bus.Subscribe(events.AllEvents, s.stream)
		s.api = api.New(api.Config{
			Listen:            cfg.API.Listen,
			AllowedOrigins:    cfg.API.AllowedOrigins,
			ReadHeaderTimeout: cfg.API.ReadHeaderTimeout,
			ShutdownTimeout:   cfg.API.ShutdownTimeout,
		}, s.engine, store, s.stream, logger)
	}

	return s, nil
}

func openStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if !cfg.Storage.Enabled {
		logger.Info("Persistent storage disabled, indexing in memory")
		return memory.New(), nil
	}
	store, err := postgres.NewStorage(cfg.Storage.PostgresURL, postgres.Options{
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	}, logger.Named("storage"))
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Engine returns the engine for in-process callers.
func (s *Service) Engine() *engine.Engine { return s.engine }

// Directory returns the in-memory social graph backing the engine.
func (s *Service) Directory() *social.Directory { return s.directory }

// Bank returns the settlement ledger receiving payouts.
func (s *Service) Bank() *currency.Bank { return s.bank }

// Storage returns the indexed event store.
func (s *Service) Storage() storage.Storage { return s.store }

// Replay runs sc against the service engine. Its profiles, posts and blocks
// are added to the directory, and every committed operation flows through
// the bus to the indexer, metrics and stream like any other caller's.
func (s *Service) Replay(ctx context.Context, sc *scenario.Scenario) (*scenario.Report, error) {
	w, err := scenario.Attach(scenario.Target{
		Engine:    s.engine,
		Directory: s.directory,
		Bank:      s.bank,
		Clock:     s.clock,
		Platform:  s.cfg.Platform,
		Logger:    s.logger,
	}, sc)
	if err != nil {
		return nil, fmt.Errorf("replay %q: %w", sc.Name, err)
	}
	report := w.Run(ctx, sc)
	s.logger.Info("Scenario replayed",
		zap.String("scenario", sc.Name),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed))
	return report, nil
}

// Run serves the HTTP surfaces until ctx is cancelled or one of them fails,
// then shuts everything down.
func (s *Service) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if s.cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              s.cfg.Metrics.Listen,
			Handler:           s.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("Metrics listening", zap.String("addr", srv.Addr))
			return serve(srv.ListenAndServe())
		})
		g.Go(func() error {
			<-gCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if s.api != nil {
		g.Go(func() error {
			return s.api.ListenAndServe()
		})
		g.Go(func() error {
			<-gCtx.Done()
			return s.api.Shutdown(context.Background())
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})

	s.logger.Info("Launchpad running",
		zap.String("platform", s.cfg.Platform),
		zap.Bool("api", s.api != nil),
		zap.Bool("metrics", s.cfg.Metrics.Enabled),
		zap.Bool("storage", s.cfg.Storage.Enabled))

	runErr := g.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.shutdown.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close releases resources without running. Use it when Run is never called.
func (s *Service) Close(ctx context.Context) error {
	return s.shutdown.Shutdown(ctx)
}

func (s *Service) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func serve(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
