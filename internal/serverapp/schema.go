package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"graphql-sqlfilter/internal/config"
	"graphql-sqlfilter/internal/connection"
	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/introspection"
	"graphql-sqlfilter/internal/logging"
	"graphql-sqlfilter/internal/middleware"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/naming"
	"graphql-sqlfilter/internal/observability"
)

// loadModels returns the declared models when the config has any, otherwise
// the models introspected from the database.
func loadModels(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, database string) (*model.Schema, error) {
	if cfg.HasDeclaredModels() {
		models, err := cfg.DeclaredSchema()
		if err != nil {
			return nil, err
		}
		logger.Info("using declared models", slog.Int("models", len(models.Models())))
		return models, nil
	}

	models, err := introspection.Reflect(ctx, db, database, introspection.Options{
		Namer:   naming.New(cfg.Naming, logger.Logger),
		Exclude: cfg.Database.ExcludeTables,
		Logger:  logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("introspected models",
		slog.String("database", database),
		slog.Int("models", len(models.Models())),
	)
	return models, nil
}

// buildFilterSets defines one filter set per configured entry, keyed by
// model name. All sets share types so operator inputs are generated once.
func buildFilterSets(cfg *config.Config, logger *logging.Logger, models *model.Schema, types *filterset.TypeRegistry, metrics *observability.Metrics) (map[string]*filterset.FilterSet, error) {
	sets := make(map[string]*filterset.FilterSet, len(cfg.Filters.Sets))
	for _, set := range cfg.Filters.Sets {
		m, ok := models.Model(set.Model)
		if !ok {
			return nil, fmt.Errorf("filters.sets[%s]: model is not in the schema", set.Model)
		}
		spec, err := set.FieldSpec()
		if err != nil {
			return nil, err
		}

		opts := []filterset.Option{
			filterset.WithTypeRegistry(types),
			filterset.WithLogger(logger.Logger),
		}
		if set.Description != "" {
			opts = append(opts, filterset.WithDescription(set.Description))
		}
		if metrics != nil {
			opts = append(opts, filterset.WithMetrics(metrics))
		}
		fs, err := filterset.Define(set.TypeName(), m, spec, opts...)
		if err != nil {
			return nil, fmt.Errorf("filters.sets[%s]: %w", set.Model, err)
		}
		sets[m.Name] = fs
		logger.Debug("filter set defined",
			slog.String("filter_set", fs.Name()),
			slog.String("model", m.Name),
		)
	}
	return sets, nil
}

func buildSchema(cfg *config.Config, logger *logging.Logger, db *sql.DB, models *model.Schema, metrics *observability.Metrics) (*connection.Factory, graphql.Schema, error) {
	types := filterset.NewTypeRegistry(logger.Logger)
	sets, err := buildFilterSets(cfg, logger, models, types, metrics)
	if err != nil {
		return nil, graphql.Schema{}, err
	}

	factory, err := connection.NewFactory(connection.Config{
		Schema:       models,
		Executor:     dbexec.NewDBExecutor(db, logger.Logger),
		Types:        types,
		FilterSets:   sets,
		FilterArg:    cfg.Filters.Argument,
		DefaultLimit: cfg.Filters.DefaultLimit,
		MaxLimit:     cfg.Filters.MaxLimit,
		Namer:        naming.New(cfg.Naming, logger.Logger),
		Metrics:      metrics,
		Logger:       logger.Logger,
	})
	if err != nil {
		return nil, graphql.Schema{}, err
	}
	schema, err := factory.Schema()
	if err != nil {
		return nil, graphql.Schema{}, err
	}
	return factory, schema, nil
}

// buildGraphQLHandler serves schema behind the per-request layers:
//
//	logging -> request analysis -> filter scope -> metrics -> tracing -> graphql
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, schema *graphql.Schema, metrics *observability.Metrics) http.Handler {
	var h http.Handler = handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	h = middleware.GraphQLTracingMiddleware()(h)
	if metrics != nil {
		h = middleware.GraphQLMetricsMiddleware(metrics)(h)
		logger.Info("GraphQL metrics middleware enabled")
	}
	h = middleware.FilterScopeMiddleware()(h)
	h = middleware.GraphQLRequestMiddleware(cfg.Filters.Argument)(h)
	return middleware.LoggingMiddleware(logger)(h)
}
