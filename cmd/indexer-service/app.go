package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"txindexer/internal/audit"
	"txindexer/internal/config"
	"txindexer/internal/constants"
	"txindexer/internal/deadletter"
	"txindexer/internal/enrichment"
	"txindexer/internal/idempotency"
	"txindexer/internal/logger"
	"txindexer/internal/pipeline"
	"txindexer/internal/search"
	"txindexer/internal/versioning"
	"txindexer/pkg/bootstrap"
	"txindexer/pkg/cel"
	"txindexer/pkg/circuitbreaker"
	"txindexer/pkg/health"
	"txindexer/pkg/metrics"
	"txindexer/pkg/migrations"
	"txindexer/pkg/retry"
	"txindexer/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	mongoClient    *mongo.Client
	postgresDB     *sql.DB
	searchRepo     *search.ElasticsearchRepository
	breakers       *circuitbreaker.Registry
	auditWriter    *audit.Writer
	consumer       *pipeline.Consumer
	probe          *circuitbreaker.Probe
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	a.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold:  a.Config.CircuitBreaker.FailureThreshold,
		Timeout:           a.Config.CircuitBreaker.Timeout(),
		HalfOpenSuccesses: a.Config.CircuitBreaker.HalfOpenSuccesses,
		CallTimeout:       a.Config.CircuitBreaker.CallTimeout,
	}, a.Logger)

	if err := a.initStores(ctx); err != nil {
		return err
	}

	if err := a.initSearch(ctx); err != nil {
		return fmt.Errorf("failed to initialize search: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	deps, err := a.buildDependencies(ctx)
	if err != nil {
		return err
	}

	a.consumer = pipeline.NewConsumer(a.Consumer, a.pipelineConfig(), deps)
	a.probe = circuitbreaker.NewProbe(a.breakers.MustGet(circuitbreaker.NameSearch), a.searchRepo.Ping, circuitbreaker.DefaultProbeInterval)

	a.initHTTPServer()
	return nil
}

// initStores connects the optional stores. Each one that fails to connect
// degrades a feature instead of stopping startup.
func (a *App) initStores(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis unavailable, idempotency runs on the local cache only", "error", err)
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "PostgreSQL unavailable, audit writes disabled", "error", err)
	}
	a.postgresDB = db

	if a.postgresDB != nil && a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(a.postgresDB); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied")
	}

	mc, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB unavailable, using the built-in category catalog", "error", err)
	}
	a.mongoClient = mc

	if a.mongoClient != nil && a.Config.Database.RunMigrations {
		db := a.mongoClient.Database(a.Config.Database.MongoDB.Database)
		if err := migrations.EnsureCatalogCollection(ctx, db, a.catalogCollection()); err != nil {
			return fmt.Errorf("failed to prepare catalog collection: %w", err)
		}
	}

	return nil
}

func (a *App) initSearch(ctx context.Context) error {
	client, err := bootstrap.InitElasticsearch(ctx, a.Config.Search, a.Logger)
	if err != nil {
		return err
	}
	a.searchRepo = search.NewRepository(client, a.Config.Search.Index)

	if a.Config.Search.CreateIndex {
		created, err := a.searchRepo.EnsureIndex(ctx)
		if err != nil {
			return err
		}
		if created {
			a.Logger.InfowCtx(ctx, "Search index created", "index", a.Config.Search.Index)
		}
	}
	return nil
}

func (a *App) buildDependencies(ctx context.Context) (pipeline.Dependencies, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return pipeline.Dependencies{}, fmt.Errorf("failed to create rule evaluator: %w", err)
	}
	rules, err := enrichment.CompileRules(evaluator, a.Config.Enrichment.Rules)
	if err != nil {
		return pipeline.Dependencies{}, fmt.Errorf("failed to compile enrichment rules: %w", err)
	}

	var catalogRepo enrichment.Repository
	if a.mongoClient != nil {
		db := a.mongoClient.Database(a.Config.Database.MongoDB.Database)
		catalogRepo = enrichment.NewRepository(db, a.catalogCollection())
	}
	catalog := enrichment.LoadCatalog(ctx, catalogRepo, a.Logger)

	var remote idempotency.Repository
	if a.redis != nil {
		remote = idempotency.NewCircuitBreakerRepository(
			idempotency.NewRepository(a.redis),
			a.breakers.MustGet(circuitbreaker.NameIdempotency),
		)
	}
	tracker := idempotency.NewTracker(idempotency.Config{
		LocalCacheSize: a.Config.Consumer.LocalCacheSize,
		TTL:            a.Config.Consumer.ProcessedTTL,
	}, remote, a.Logger)

	searchWriter := search.NewCircuitBreakerRepository(a.searchRepo, a.breakers.MustGet(circuitbreaker.NameSearch))

	versioner, err := versioning.NewVersioner(a.Config.Consumer.VersionCacheSize, searchWriter, a.Logger)
	if err != nil {
		return pipeline.Dependencies{}, fmt.Errorf("failed to create versioner: %w", err)
	}

	router := deadletter.NewRouter(
		a.Producer,
		a.breakers.MustGet(circuitbreaker.NameDeadLetter),
		a.Config.Broker.Kafka.DLQTopic,
		a.Logger,
	)

	deps := pipeline.Dependencies{
		Tracker:    tracker,
		Enricher:   enrichment.NewEnricher(catalog, rules, a.Logger),
		Versioner:  versioner,
		Search:     searchWriter,
		DeadLetter: router,
		Logger:     a.Logger,
	}

	if a.Config.Consumer.EnableAuditWrites && a.postgresDB != nil {
		repo := audit.NewCircuitBreakerRepository(
			audit.NewRepository(a.postgresDB),
			a.breakers.MustGet(circuitbreaker.NameAudit),
		)
		a.auditWriter = audit.NewWriter(repo, audit.Config{
			QueueSize: a.Config.Consumer.AuditQueueSize,
			Workers:   a.Config.Consumer.AuditWorkers,
		}, a.Logger)
		a.auditWriter.Start()
		deps.Audit = a.auditWriter
	}

	return deps, nil
}

func (a *App) pipelineConfig() pipeline.Config {
	c := a.Config.Consumer
	return pipeline.Config{
		BatchSize:    c.BatchSize,
		BatchTimeout: c.BatchTimeout(),
		MaxRetries:   c.MaxRetries,
		Retry: retry.Policy{
			MaxRetries:      c.MaxRetries,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
			Multiplier:      c.Retry.Multiplier,
		},
		ShutdownTimeout: c.ShutdownTimeout,
		ProcessedTTL:    c.ProcessedTTL,
	}
}

func (a *App) catalogCollection() string {
	if a.Config.Enrichment.CatalogCollection != "" {
		return a.Config.Enrichment.CatalogCollection
	}
	return constants.DefaultCatalogCollection
}

func (a *App) initHTTPServer() {
	checks := health.NewCheckerRegistry()
	checks.Register(health.NewElasticsearchChecker(a.searchRepo))
	if a.redis != nil {
		checks.Register(health.NewRedisChecker(a.redis))
	}
	if a.postgresDB != nil {
		checks.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}
	if a.mongoClient != nil {
		checks.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	for _, name := range a.breakers.Names() {
		checks.Register(health.NewBreakerChecker(a.breakers.MustGet(name)))
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      newOpsHandler(checks, a.breakers, a.consumer, a.Logger),
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultHTTPTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.probe.Run(gCtx)
	})

	g.Go(func() error {
		a.Logger.InfowCtx(gCtx, "Consuming transactions",
			"topic", a.Config.Broker.Kafka.Topic,
			"group_id", a.Config.Broker.Kafka.GroupID,
		)
		return a.consumer.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down indexer service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.auditWriter != nil {
			closeCtx, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
			if err := a.auditWriter.Close(closeCtx); err != nil {
				errs = append(errs, fmt.Errorf("audit writer close error: %w", err))
			}
			cancel()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgresDB, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
