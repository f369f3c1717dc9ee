package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kv-gateway/api"
	"kv-gateway/backend"
	"kv-gateway/config"
	"kv-gateway/credentials"
	"kv-gateway/kv"
	"kv-gateway/logging"
	"kv-gateway/middleware/metrics"
	"kv-gateway/middleware/ratelimit"
	"kv-gateway/middleware/ratelimit/domain"
	"kv-gateway/middleware/ratelimit/infra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway. Every configuration key can be overridden by an
environment variable with the GATEWAY_ prefix (e.g. GATEWAY_REDIS_HOST).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

// app reúne o que o processo precisa fechar no shutdown.
type app struct {
	handler http.Handler
	pool    *backend.Pool
	window  *infra.FixedWindow
	routes  *infra.BucketStore
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func build(cfg *config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.pool = backend.NewPool(
		backend.RedisDialer{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DialTimeout: cfg.Redis.DialTimeout,
		},
		backend.WithMaxAttempts(cfg.Redis.MaxAttempts),
		backend.WithRetryBackoff(cfg.Redis.RetryBackoff),
		backend.WithLogger(log),
	)
	a.closers = append(a.closers, a.pool.Close)

	creds, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, creds.Close)
	cached, err := credentials.NewCachedStore(creds, cfg.APIKeys.CacheSize)
	if err != nil {
		return nil, err
	}

	rl, err := a.rateLimitOptions(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	a.handler = api.NewRouter(api.Deps{
		KV:           kv.NewService(a.pool, log),
		Credentials:  cached,
		AdminKey:     credentials.NewAdminKey(cfg.AdminAPIKey),
		APIKeyHeader: cfg.APIKeys.Header,
		AdminHeader:  cfg.APIKeys.AdminHeader,
		RateLimit:    rl,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
		},
		Metrics:     m,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSAllowOrigins,
		Logger:      log,
	})
	return a, nil
}

func openCredentials(cfg *config.Config) (*credentials.SQLStore, error) {
	dialect, err := credentials.ParseDialect(cfg.APIKeys.Driver)
	if err != nil {
		return nil, err
	}
	store, err := credentials.Open(dialect, cfg.APIKeys.DSN)
	if err != nil {
		return nil, fmt.Errorf("api key store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (a *app) rateLimitOptions(cfg *config.Config) (ratelimit.Options, error) {
	classify, err := ratelimit.TrustedNetworks(cfg.Rate.TrustedCIDRs...)
	if err != nil {
		return ratelimit.Options{}, err
	}
	limits := domain.Limits{Global: cfg.Rate.Global, Trusted: cfg.Rate.Trusted, General: cfg.Rate.General}

	opts := ratelimit.Options{
		TrustXForwardedFor:  cfg.Rate.TrustXFF,
		Classify:            classify,
		AddRateLimitHeaders: cfg.Rate.AddHeaders,
	}

	var rdb *redis.Client
	if cfg.Rate.Store == "redis" || cfg.Rate.StatsEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       0,
		})
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return ratelimit.Options{}, fmt.Errorf("redis rate limit ping error: %w", err)
		}
	}

	if cfg.Rate.Store == "redis" {
		opts.Window = infra.NewRedisWindow(rdb, limits, infra.WithRedisWindowSize(cfg.Rate.Window))
	} else {
		a.window = infra.NewFixedWindow(limits,
			infra.WithWindowSize(cfg.Rate.Window),
			infra.WithSweepEvery(cfg.Rate.SweepEvery))
		opts.Window = a.window
	}

	if cfg.Rate.RouteRPS > 0 && cfg.Rate.RouteBurst > 0 {
		a.routes = infra.NewBucketStore(cfg.Rate.RouteRPS, cfg.Rate.RouteBurst)
		opts.Routes = a.routes
	}

	if cfg.Rate.StatsEnabled {
		opts.Stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Rate.StatsPrefix),
			infra.WithStatsTTL(cfg.Rate.StatsTTL),
			infra.WithStatsTrackCallers(cfg.Rate.StatsTrackCallers),
			infra.WithStatsPerMinute(cfg.Rate.StatsPerMinute),
		)
	}
	return opts, nil
}

// startJanitors limpa janelas e buckets ociosos até o ctx encerrar.
func (a *app) startJanitors(ctx context.Context) {
	if a.window != nil {
		a.window.StartJanitor(ctx)
	}
	if a.routes != nil {
		a.routes.StartJanitor(ctx)
	}
}

func serve(cfg *config.Config) error {
	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	a, err := build(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.startJanitors(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("redis", cfg.Redis.Addr()),
		zap.Int("backend_max_attempts", cfg.Redis.MaxAttempts))
	log.Info("rate limit",
		zap.String("store", cfg.Rate.Store),
		zap.Duration("window", cfg.Rate.Window),
		zap.Int("global", cfg.Rate.Global),
		zap.Int("trusted", cfg.Rate.Trusted),
		zap.Int("general", cfg.Rate.General),
		zap.Strings("trusted_cidrs", cfg.Rate.TrustedCIDRs),
		zap.Float64("route_rps", cfg.Rate.RouteRPS),
		zap.Int("route_burst", cfg.Rate.RouteBurst),
		zap.Bool("stats", cfg.Rate.StatsEnabled))
	log.Info("concurrency", zap.Int("max", cfg.Concurrency.Max), zap.Duration("acquire_timeout", cfg.Concurrency.Timeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", zap.Error(err))
		return err
	}
	log.Info("gateway stopped")
	return nil
}
