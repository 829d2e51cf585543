package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"graphql-sqlfilter/internal/logging"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a graphql.execute span
// and adds the trace and span IDs to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := RequestInfoFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer("graphql-sqlfilter/graphql").Start(r.Context(), "graphql.execute")
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				))
			}
			if span.IsRecording() {
				attrs := []attribute.KeyValue{
					attribute.String("graphql.operation.type", info.OperationType),
					attribute.Int("graphql.document.fields", info.Fields),
					attribute.Int("graphql.document.depth", info.Depth),
					attribute.Int("graphql.document.variables", info.Variables),
					attribute.Int("graphql.document.filtered_fields", info.FilteredFields),
				}
				if info.OperationName != "" {
					attrs = append(attrs, attribute.String("graphql.operation.name", info.OperationName))
				}
				span.SetAttributes(attrs...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
