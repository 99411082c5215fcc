package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/address"
	"github.com/Inaralmeida/smilink-sub001/internal/api"
	"github.com/Inaralmeida/smilink-sub001/internal/appointment"
	"github.com/Inaralmeida/smilink-sub001/internal/config"
	"github.com/Inaralmeida/smilink-sub001/internal/db"
	"github.com/Inaralmeida/smilink-sub001/internal/intake"
	"github.com/Inaralmeida/smilink-sub001/internal/logging"
	"github.com/Inaralmeida/smilink-sub001/internal/metrics"
	redisclient "github.com/Inaralmeida/smilink-sub001/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolSettings{
		AppName:  "smilink-api",
		TimeZone: cfg.ClinicTimezone,
		MaxConns: cfg.PostgresMaxConns,
	})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info("connected to postgres")

	if cfg.RunMigrations {
		dbVersion, err := db.Migrate(rootCtx, pgPool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		logger.Info("migrations applied", zap.Int64("db_version", dbVersion))
	}

	redisCtx, cancelRedis := context.WithTimeout(rootCtx, 5*time.Second)
	rdb, err := redisclient.NewRedisClient(redisCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	cancelRedis()
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	appts := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		locker,
		logger.Named("agenda"),
		appointment.WithLocation(cfg.Location()),
		appointment.WithMetrics(m),
	)
	intakeSvc := intake.NewService(
		intake.NewPgStore(pgPool),
		address.NewClient(cfg.AddressLookupURL, cfg.AddressLookupTimeout, logger.Named("address")),
		locker,
		logger.Named("intake"),
		intake.WithLocation(cfg.Location()),
		intake.WithMetrics(m),
	)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, every request acts as staff")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Appointments: appts,
			Intake:       intakeSvc,
			Postgres:     pgPool,
			Redis:        api.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
			Logger:       logger.Named("http"),
			Metrics:      m,
			Gatherer:     registry,
			JWTSecret:    cfg.JWTSecret,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
