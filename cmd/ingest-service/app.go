package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"ingest/internal/api"
	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/internal/ingestion"
	"ingest/internal/ledger"
	"ingest/internal/logger"
	"ingest/internal/queue"
	"ingest/internal/storage"
	"ingest/internal/transform"
	"ingest/pkg/bootstrap"
	"ingest/pkg/health"
	"ingest/pkg/logging"
	"ingest/pkg/metrics"
	"ingest/pkg/middleware"
	"ingest/pkg/ratelimit"
	"ingest/pkg/retry"
	"ingest/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	awsCfg   aws.Config
	queue    queue.Client
	store    *storage.CircuitBreakerStore
	ledger   *ledger.CircuitBreakerLedger
	dynamo   *ledger.DynamoDBLedger
	registry *transform.Registry
	loop     *ingestion.Loop

	limiters *ratelimit.Limiters
	router   *gin.Engine
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg.Ledger, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracing", tp.Shutdown)

	metrics.RegisterAll()

	if a.Config.UsesAWS() {
		awsCfg, err := bootstrap.LoadAWSConfig(ctx, a.Config.AWS)
		if err != nil {
			return err
		}
		a.awsCfg = awsCfg
	}

	registry, err := transform.NewRegistryFromConfig(a.Config.Transformers)
	if err != nil {
		return fmt.Errorf("failed to build transformer registry: %w", err)
	}
	if registry.Len() == 0 {
		a.Logger.WarnwCtx(ctx, "No transformers registered, every record will fail with NO_TRANSFORMER")
	}
	a.registry = registry

	if err := a.initLedger(ctx); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	store, err := storage.NewFromConfig(a.Config, a.awsCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store

	q, err := queue.NewClient(ctx, a.Config.Queue, a.awsCfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.queue = q
	a.OnShutdown("queue", func(context.Context) error { return q.Close() })

	a.loop = ingestion.New(
		ingestion.Dependencies{
			Queue:    a.queue,
			Store:    a.store,
			Ledger:   a.ledger,
			Registry: a.registry,
			Logger:   a.Logger,
		},
		ingestion.Options{
			Listener: a.Config.Listener,
			Output:   a.Config.Output,
			Retry:    retryPolicy(a.Config.Retry),
		},
	)

	if a.Config.Server.Enabled {
		a.initRouter()
		a.server = &http.Server{
			Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
			Handler:      a.router,
			ReadTimeout:  a.Config.Server.ReadTimeout,
			WriteTimeout: a.Config.Server.WriteTimeout,
		}
	}

	a.Logger.InfowCtx(ctx, "Application initialized",
		"queue", a.Config.Queue.Type,
		"storage", a.Config.Storage.Type,
		"ledger", a.Config.Ledger.Type,
		"transformers", registry.Keys(),
	)
	return nil
}

func (a *App) initLedger(ctx context.Context) error {
	if err := a.dbConnector.Connect(ctx); err != nil {
		return err
	}
	a.OnShutdown("ledger", func(ctx context.Context) error {
		if errs := a.dbConnector.Shutdown(ctx); len(errs) > 0 {
			return fmt.Errorf("%v", errs)
		}
		return nil
	})

	backends := ledger.Backends{
		Mongo:    a.dbConnector.MongoDatabase(),
		Postgres: a.dbConnector.Postgres,
	}
	if a.dbConnector.Redis != nil {
		backends.Redis = a.dbConnector.Redis
	}
	if a.Config.Ledger.Type == config.LedgerTypeDynamoDB {
		backends.DynamoDB = dynamodb.NewFromConfig(a.awsCfg)
	}

	l, err := ledger.NewFromConfig(ctx, a.Config.Ledger, backends)
	if err != nil {
		return err
	}
	if d, ok := l.(*ledger.DynamoDBLedger); ok {
		a.dynamo = d
	}
	a.ledger = ledger.NewCircuitBreakerLedger(l, a.Config.CircuitBreaker, a.Config.Ledger.Type)
	return nil
}

func (a *App) healthRegistry() *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()

	switch {
	case a.dynamo != nil:
		registry.Register(a.dynamo)
	case a.dbConnector.Redis != nil:
		registry.Register(health.NewRedisChecker(a.dbConnector.Redis))
	case a.dbConnector.Postgres != nil:
		registry.Register(health.NewPostgreSQLChecker(a.dbConnector.Postgres))
	case a.dbConnector.Mongo != nil:
		registry.Register(health.NewMongoDBChecker(a.dbConnector.Mongo))
	}

	bucket := a.Config.Output.Bucket
	registry.RegisterOptional(health.NewFuncChecker("output_bucket", func(ctx context.Context) error {
		return a.store.CheckBucket(ctx, bucket)
	}))

	return registry
}

func (a *App) initRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if rl := a.Config.Server.RateLimit; rl.Enabled {
		a.limiters = ratelimit.NewLimiters(rl)
		router.Use(a.limiters.Middleware())
		a.Logger.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	healthRegistry := a.healthRegistry()
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler := api.NewHandler(a.registry, a.ledger, map[string]api.StateReporter{
		"storage": a.store,
		"ledger":  a.ledger,
	}, a.Logger)
	handler.RegisterRoutes(router)

	a.router = router
}

// Run drives the ingestion loop and, when enabled, the ops server until ctx
// is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(gCtx)
	})

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	if a.limiters != nil {
		g.Go(func() error {
			a.limiters.RunCleanup(gCtx)
			return nil
		})
	}

	return g.Wait()
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	if cfg.MaxAttempts <= 1 {
		return retry.NoRetry()
	}

	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.MaxAttempts
	if cfg.InitialInterval > 0 {
		p.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		p.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		p.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return p
}
