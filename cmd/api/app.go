package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bluecarbon-registry/config"
	httpHandler "bluecarbon-registry/internal/adapter/http/handler"
	"bluecarbon-registry/internal/adapter/http/middleware"
	"bluecarbon-registry/internal/adapter/ledger"
	pgStorage "bluecarbon-registry/internal/adapter/storage/postgres"
	redisStorage "bluecarbon-registry/internal/adapter/storage/redis"
	"bluecarbon-registry/internal/anchoring"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/internal/projection"
	"bluecarbon-registry/internal/registry"
	"bluecarbon-registry/internal/service"
	"bluecarbon-registry/internal/workflow"
	"bluecarbon-registry/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// app is the fully wired registry service.
type app struct {
	log     zerolog.Logger
	store   *registry.Store
	coord   *anchoring.Coordinator
	audit   *service.AuditService
	tokens  *service.JWTTokenService
	router  *gin.Engine
	metrics *prometheus.Registry
	closers []func()
}

// ledgerClient is what the service needs from a ledger adapter.
type ledgerClient interface {
	ports.Ledger
	ports.HealthChecker
}

func newLedger(cfg config.LedgerConfig) (ledgerClient, error) {
	switch cfg.Driver {
	case "memory":
		return ledger.NewMemory(cfg.FinalityDelay), nil
	case "http":
		var signer ledger.Signer
		if cfg.Secret != "" {
			signer = service.NewHMACSigner(cfg.Secret)
		}
		h, err := ledger.NewHTTP(cfg.Endpoint, cfg.APIKey, &http.Client{Timeout: cfg.Timeout}, signer)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
}

// newApp connects the optional stores and wires every component.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{log: log, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		checkers   []ports.HealthChecker
		anchorRepo ports.AnchorRepository
		auditRepo  ports.AuditRepository
	)

	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			a.close()
			return nil, err
		}
		anchorRepo = pgStorage.NewAnchorRepository(pool)
		auditRepo = pgStorage.NewAuditRepository(pool)
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	}

	var limiter ports.RateLimiter = middleware.NewMemoryRateLimiter()
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		limiter = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	led, err := newLedger(cfg.Ledger)
	if err != nil {
		a.close()
		return nil, err
	}
	checkers = append(checkers, led)

	a.audit = service.NewAuditService(auditRepo, logger.Component(log, "audit"))
	a.coord = anchoring.New(anchoring.Config{
		MaxAttempts:    cfg.Anchoring.MaxAttempts,
		InitialBackoff: cfg.Anchoring.InitialBackoff,
		MaxBackoff:     cfg.Anchoring.MaxBackoff,
		PollInterval:   cfg.Anchoring.PollInterval,
		SubmitTimeout:  cfg.Anchoring.SubmitTimeout,
		Workers:        cfg.Anchoring.Workers,
		QueueSize:      cfg.Anchoring.QueueSize,
	}, led, anchorRepo, anchoring.NewMetrics(a.metrics), logger.Component(log, "anchoring"))

	a.store = registry.New(service.NewUUIDGenerator(), a.coord, a.audit, logger.Component(log, "registry"))
	a.coord.SetListener(a.store)

	a.tokens = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	a.router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		Registry:       a.store,
		Reviews:        workflow.New(a.store, logger.Component(log, "workflow")),
		Queries:        projection.New(a.store, a.coord),
		Anchors:        a.coord,
		TokenSvc:       a.tokens,
		RateLimiter:    limiter,
		RateLimit:      middleware.RateLimitRule{Limit: int64(cfg.RateLimit.Limit), Window: cfg.RateLimit.Window},
		AuditSvc:       a.audit,
		AuditRepo:      auditRepo,
		HealthCheckers: checkers,
		Gatherer:       a.metrics,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})
	return a, nil
}

// start resumes durable anchoring work and launches the coordinator.
func (a *app) start(ctx context.Context) error {
	n, err := a.coord.Recover(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Info().Int("records", n).Msg("resuming anchoring work")
	}
	a.coord.Start(ctx)
	return nil
}

// shutdown stops the coordinator, drains audit writes and closes stores.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.coord.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.audit.Wait()
	a.close()
	return errors.Join(errs...)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
