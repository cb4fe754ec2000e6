package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/cache"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/config"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/httpapi"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/logging"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/metrics"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/pricing"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/scheduler"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/service"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store"
	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store/memory"
	pgstore "github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/store/postgres"
)

// marketCache backs both the demand count and the trust score read path.
type marketCache interface {
	cache.DemandCache
	cache.TrustScoreCache
}

type app struct {
	handler http.Handler
	sweeper *scheduler.Sweeper
	closers []func() error
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := build(startCtx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close(logger)

	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("start expiry sweeper: %w", err)
	}
	defer a.sweeper.Stop()
	logger.Info("first expiry sweep scheduled", zap.Time("at", a.sweeper.Next()))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("marketplace listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sigCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

// build wires storage, caches, pricing, the service and the HTTP surface.
// Nothing is started; the caller owns the sweeper and the closers.
func build(ctx context.Context, cfg config.Config, logger *zap.Logger, reg *prometheus.Registry) (*app, error) {
	m := metrics.New(reg)
	a := &app{}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeRepo != nil {
		a.closers = append(a.closers, closeRepo)
	}

	c, closeCache := openCache(ctx, cfg, logger)
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	engine := pricing.NewEngine(repo,
		pricing.WithCache(c, cfg.DemandCacheTTL()),
		pricing.WithLogger(logger),
		pricing.WithFallbackHook(m.DemandFallback),
	)
	svc := service.New(repo, engine,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithNegotiationTTL(cfg.NegotiationTTL()),
		service.WithMaxOfferRounds(cfg.MaxOfferRounds),
		service.WithTrustCache(c, cfg.TrustCacheTTL()),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(m),
		httpapi.WithLoginRate(cfg.LoginAttemptsPerMinute),
	)

	a.handler = api.Handler()
	a.sweeper = scheduler.NewSweeper(svc, cfg.ExpirySweepSpec, logger, m)
	return a, nil
}

// openRepository refuses to fall back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(logger), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("repository: postgres")
	return pg, pg.Close, nil
}

// openCache uses redis when reachable and the no-op cache otherwise.
func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (marketCache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("cache: noop")
		return cache.Noop{}, nil
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, using noop cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = redisCache.Close()
		return cache.Noop{}, nil
	}
	logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, redisCache.Close
}

func (a *app) close(logger *zap.Logger) {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}
}
