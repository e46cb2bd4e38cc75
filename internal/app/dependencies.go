// Package app builds the infrastructure shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bonafide55/shop-api/internal/checkout"
	"github.com/bonafide55/shop-api/internal/config"
	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/resilience"
)

// Dependencies enumerates the connections and shared services every binary needs.
type Dependencies struct {
	Config          *config.Config
	Logger          zerolog.Logger
	DB              *pgxpool.Pool
	Redis           *redis.Client
	Validator       *validator.Validate
	LimiterStore    limiter.Store
	TaskClient      *asynq.Client
	TaskRedis       asynq.RedisConnOpt
	MetricsRegistry prometheus.Registerer
	TracerProvider  trace.TracerProvider

	shutdownTracer func(context.Context) error
}

// New connects to PostgreSQL and Redis and prepares the shared services.
// service names the binary in traces and in pg_stat_activity.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, service string) (*Dependencies, error) {
	deps := &Dependencies{
		Config:          cfg,
		Logger:          logger,
		MetricsRegistry: prometheus.DefaultRegisterer,
		Validator:       checkout.NewValidator(),
	}

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, deps.MetricsRegistry)
		if err := resilience.RegisterMetrics(deps.MetricsRegistry); err != nil {
			return nil, fmt.Errorf("register breaker metrics: %w", err)
		}
	}
	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   service,
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			deps.shutdownTracer = shutdown
		}
	}
	deps.TracerProvider = otel.GetTracerProvider()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := NewPool(connectCtx, cfg.DatabaseURL, service)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.DB = pool

	rdb, err := NewRedis(connectCtx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Redis = rdb

	store, err := NewLimiterStore(rdb)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.LimiterStore = store

	taskRedis, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("parse asynq redis uri: %w", err)
	}
	deps.TaskRedis = taskRedis
	deps.TaskClient = asynq.NewClient(taskRedis)
	return deps, nil
}

// NewPool opens a traced pgx pool and pings it.
func NewPool(ctx context.Context, databaseURL, service string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = service

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens an instrumented Redis client and pings it.
func NewRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "throttle"})
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.shutdownTracer(ctx); err != nil {
			d.Logger.Error().Err(err).Msg("shutdown tracer")
		}
	}
}
