package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"parkwise/backend/libs/db"
	libredis "parkwise/backend/libs/redis"
	"parkwise/backend/services/parking-service/internal/clients"
	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/config"
	"parkwise/backend/services/parking-service/internal/engine"
	"parkwise/backend/services/parking-service/internal/events"
	httpserver "parkwise/backend/services/parking-service/internal/http"
	"parkwise/backend/services/parking-service/internal/http/handlers"
	"parkwise/backend/services/parking-service/internal/http/middleware"
	"parkwise/backend/services/parking-service/internal/metrics"
	redisstore "parkwise/backend/services/parking-service/internal/redis"
	"parkwise/backend/services/parking-service/internal/repository"
	"parkwise/backend/services/parking-service/internal/service"
	"parkwise/backend/services/parking-service/internal/store"
	"parkwise/backend/services/parking-service/internal/tariff"
	"parkwise/backend/services/parking-service/internal/treasury"
	"parkwise/backend/services/parking-service/migrations"
)

const (
	eventPingInterval = 30 * time.Second
	eventWriteTimeout = 10 * time.Second
)

// App wires parking-service dependencies.
type App struct {
	engine       *engine.Engine
	hub          *events.Hub
	handler      http.Handler
	server       *httpserver.Server
	scanInterval time.Duration
	stopEvents   context.CancelFunc
	db           *sqlx.DB
	redisClient  *redis.Client
	logger       *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	rates, err := cfg.HourlyRates()
	if err != nil {
		return nil, err
	}

	a := &App{scanInterval: cfg.ScanInterval(), logger: logger}
	mode, err := a.selectMode(ctx, cfg, rates, loc)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("parking mode selected", zap.String("mode", mode.Name))

	a.hub = events.NewHub(eventPingInterval, logger)
	a.engine = engine.New(mode, a.hub, cfg.PendingTTL(), logger)

	eventsCtx, stopEvents := context.WithCancel(context.Background())
	a.stopEvents = stopEvents
	feed := events.NewServer(eventsCtx, a.hub, eventWriteTimeout, logger)

	var auth func(http.Handler) http.Handler
	if cfg.Auth.JWTSecret != "" {
		auth = middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("operator API is unauthenticated, set auth.jwtSecret to require tokens")
	}

	a.handler = httpserver.NewRouter(httpserver.RouterDeps{
		SessionsHandlers:  handlers.NewSessionsHandlers(a.engine, loc, logger),
		DebtsHandlers:     handlers.NewDebtsHandlers(a.engine, logger),
		ConflictsHandlers: handlers.NewConflictsHandlers(a.engine, logger),
		TreasuryHandlers:  handlers.NewTreasuryHandlers(a.engine, loc, logger),
		TariffsHandlers:   handlers.NewTariffsHandlers(a.engine, logger),
		HealthHandler:     handlers.NewHealthHandler(mode.Name),
		MetricsHandler:    metrics.Handler(),
		EventsHandler:     feed.HandleWS,
		Logger:            logger,
	}, auth)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), a.handler, logger)
	return a, nil
}

// selectMode picks the store that owns sessions. Auto mode prefers Postgres, then a
// remote backend, and falls back to local memory when neither can be reached.
func (a *App) selectMode(ctx context.Context, cfg *config.Config, rates tariff.Rates, loc *time.Location) (engine.Mode, error) {
	switch cfg.ModeName() {
	case config.ModeLocal:
		return engine.LocalMode(rates, loc, a.logger), nil
	case config.ModeBacked:
		return a.backedMode(ctx, cfg, rates, loc)
	}

	if cfg.Database.DSN == "" && cfg.Backend.URL == "" {
		return engine.LocalMode(rates, loc, a.logger), nil
	}
	mode, err := a.backedMode(ctx, cfg, rates, loc)
	if err != nil {
		a.logger.Warn("backend unavailable, falling back to local mode", zap.Error(err))
		a.Close()
		a.db, a.redisClient = nil, nil
		return engine.LocalMode(rates, loc, a.logger), nil
	}
	return mode, nil
}

func (a *App) backedMode(ctx context.Context, cfg *config.Config, rates tariff.Rates, loc *time.Location) (engine.Mode, error) {
	backend, err := a.backend(ctx, cfg, rates, loc)
	if err != nil {
		return engine.Mode{}, err
	}
	cache, cacheName, err := a.sessionCache(ctx, cfg)
	if err != nil {
		return engine.Mode{}, err
	}
	return engine.BackedMode(backend, cache, cacheName, a.logger), nil
}

func (a *App) backend(ctx context.Context, cfg *config.Config, rates tariff.Rates, loc *time.Location) (command.Backend, error) {
	if cfg.Database.DSN != "" {
		conn, err := db.NewPostgresDB(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = conn
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(conn, migrations.FS, "."); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		catalog := service.NewTariffCatalog(repository.NewTariffRepository(conn))
		tariffs := tariff.NewService(catalog, tariff.NewResolver(rates), a.logger)
		till := treasury.NewService(repository.NewTreasuryRepository(conn), loc, a.logger)
		return service.NewParkingService(conn, catalog, tariffs, till, a.logger), nil
	}

	client := clients.NewBackendClient(cfg.Backend.URL, cfg.Backend.Token, clients.NewDefaultHTTPClient(cfg.BackendTimeout()))
	policy := command.RetryPolicy{MaxRetries: cfg.Backend.MaxRetries, Delay: cfg.RetryDelay()}
	backend := command.WithRetry(client, policy, a.logger)
	if _, err := backend.TotalDebt(ctx); err != nil {
		return nil, fmt.Errorf("reach backend %s: %w", cfg.Backend.URL, err)
	}
	return backend, nil
}

func (a *App) sessionCache(ctx context.Context, cfg *config.Config) (store.Cache, string, error) {
	if cfg.Redis.Addr == "" {
		return store.NewLRUCache(cfg.Cache.Size, cfg.CacheTTL()), "lru", nil
	}
	client, err := libredis.NewRedisClient(ctx, libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		a.logger.Warn("redis unavailable, using in-process session cache", zap.Error(err))
		return store.NewLRUCache(cfg.Cache.Size, cfg.CacheTTL()), "lru", nil
	}
	a.redisClient = client
	return redisstore.NewSessionCache(client, "", cfg.RedisTTL()), "redis", nil
}

// Handler returns the HTTP handler served by the app.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Mode returns the name of the active mode.
func (a *App) Mode() string {
	return a.engine.Mode()
}

// Run serves HTTP, pings event subscribers and scans for plate conflicts until ctx is
// done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		a.hub.Start(gctx)
		return nil
	})
	g.Go(func() error {
		a.engine.RunConflictScanner(gctx, a.scanInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.stopEvents()
		return nil
	})
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.stopEvents != nil {
		a.stopEvents()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
