package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/connection"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/observability"
)

// resources is everything Init acquires. Stages fill it in order and push
// a release function for each acquisition onto cleanup.
type resources struct {
	meterProvider  *observability.MeterProvider
	metrics        *observability.Metrics
	tracerProvider *observability.TracerProvider

	db *sql.DB

	models  *model.Schema
	factory *connection.Factory
	schema  graphql.Schema

	handler    http.Handler
	serverAddr string
	srv        *http.Server

	cleanup cleanupStack
}

type initStage struct {
	name string
	run  func(context.Context, *resources) error
}

// Init runs the telemetry, database, schema and HTTP stages. On failure
// everything acquired so far is released. Init is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.res != nil
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := &resources{}
	stages := []initStage{
		{"telemetry", a.initTelemetry},
		{"database", a.initDatabase},
		{"schema", a.initSchema},
		{"http", a.initHTTP},
	}
	for _, stage := range stages {
		if err := stage.run(ctx, res); err != nil {
			_ = res.cleanup.run(context.Background(), a.logger)
			return err
		}
		a.logger.Debug("init stage complete", slog.String("stage", stage.name))
	}

	a.stateMu.Lock()
	a.res = res
	a.stateMu.Unlock()
	return nil
}

func (a *App) initTelemetry(_ context.Context, res *resources) error {
	if lp := a.loggerProvider; lp != nil {
		res.cleanup.push("logger provider", func(ctx context.Context) error {
			return lp.Shutdown(ctx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		res.cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}
	res.meterProvider, res.metrics = meterProvider, metrics

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		res.cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}
	res.tracerProvider = tracerProvider
	return nil
}

func (a *App) initDatabase(ctx context.Context, res *resources) error {
	a.logger.Info("connecting to MySQL",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database_effective", a.effectiveDatabase),
		slog.String("database_source", a.databaseSource),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, statsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	res.cleanup.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})
	res.db = db

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase, a.databaseSource, a.dsnPresent); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	return nil
}

func (a *App) initSchema(ctx context.Context, res *resources) error {
	models, err := loadModels(ctx, a.cfg, a.logger, res.db, a.effectiveDatabase)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	factory, schema, err := buildSchema(a.cfg, a.logger, res.db, models, res.metrics)
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	res.models, res.factory, res.schema = models, factory, schema
	return nil
}

func (a *App) initHTTP(_ context.Context, res *resources) error {
	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, &res.schema, res.metrics)
	mux := buildRouter(a.cfg, a.logger, res.db, graphqlHandler, res.meterProvider)
	res.handler = wrapHTTPHandler(a.cfg, a.logger, mux)

	res.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	res.srv = buildServer(a.cfg, res.handler, res.serverAddr)
	srv := res.srv
	res.cleanup.push("HTTP server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	return nil
}
