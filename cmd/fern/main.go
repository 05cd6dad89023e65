package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	conflictrepo "github.com/Ramsey-B/fern/internal/repositories/conflict"
	"github.com/Ramsey-B/fern/internal/repositories/graphentity"
	providerrepo "github.com/Ramsey-B/fern/internal/repositories/provider"
	tombstonerepo "github.com/Ramsey-B/fern/internal/repositories/tombstone"
	"github.com/Ramsey-B/fern/pkg/crawler"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/discovery"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithField("app", cfg.AppName).Info("Starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := initTracing(ctx, cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Tracing shutdown failed")
		}
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Fatal error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg *config.Config, logger ectologger.Logger) func(context.Context) error {
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
	if cfg.OTLPEnabled {
		otlp, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			logger.WithError(err).Warn("OTLP exporter unavailable, falling back to console spans")
		} else {
			exporter = otlp
		}
	}
	return tracing.Init(cfg.AppName, exporter)
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migrateDatabase(db, cfg, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(cfg.Kafka, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producer, logger)

	entityRepo := graphentity.NewRepository(db, logger)
	providerRepo := providerrepo.NewRepository(db, logger)
	tombstoneRepo := tombstonerepo.NewRepository(db, logger)
	conflictRepo := conflictrepo.NewRepository(db, logger)

	processor := pipeline.NewProcessor(db, logger, entityRepo, tombstoneRepo, conflictRepo, emitter)

	fetcher := httpclient.NewClient(cfg.Fetcher, logger)
	discoverySvc := discovery.NewService(fetcher, logger)
	locker := redis.NewLocker(redisClient, "fern")

	crawlerSvc := crawler.NewCrawler(cfg.Crawler, logger, providerRepo, entityRepo, discoverySvc, processor, locker, emitter)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&bootDependency{
		name:  "database",
		start: db.PingContext,
		stop:  func(context.Context) error { return nil },
	})
	boot.AddDependency(&bootDependency{
		name:  "redis",
		start: redisClient.Ping,
		stop:  func(context.Context) error { return nil },
	})
	if cfg.CrawlerEnabled {
		boot.AddDependency(crawlerSvc)
	}
	if err := boot.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("Dependencies did not stop cleanly")
		}
	}()

	e := newServer(cfg, logger)

	checker := health.NewChecker(db, redisClient, cfg.Version)
	checker.RegisterRoutes(e)
	checker.SetReady(true)

	v1 := e.Group("/v1")
	handlers.NewProviderHandler(providerRepo, entityRepo, crawlerSvc).RegisterRoutes(v1)
	handlers.NewEntityHandler(entityRepo).RegisterRoutes(v1)
	handlers.NewDocumentHandler(processor).RegisterRoutes(v1)
	handlers.NewConflictHandler(conflictRepo).RegisterRoutes(v1)
	handlers.NewTombstoneHandler(tombstoneRepo).RegisterRoutes(v1)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// bootDependency adapts a pair of functions to startup.StartupDependency for
// resources whose lifecycle is otherwise managed by their own Close.
type bootDependency struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (d *bootDependency) GetName() string                 { return d.name }
func (d *bootDependency) DependsOn() []string             { return nil }
func (d *bootDependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *bootDependency) Stop(ctx context.Context) error  { return d.stop(ctx) }

func newServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = false

	e.Server.ReadTimeout = time.Duration(cfg.HTTPServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HTTPServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HTTPServerIdleTimeoutSeconds) * time.Second

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	return e
}

func migrateDatabase(db database.DB, cfg *config.Config, logger ectologger.Logger) error {
	instance, ok := db.(*database.DatabaseInstance)
	if !ok {
		return fmt.Errorf("database does not support migrations")
	}

	driver, err := migratepg.WithInstance(instance.DB.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	return database.NewMigrationService(logger, &cfg.Migration).Migrate("fern", driver)
}
