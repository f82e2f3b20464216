package graphql

import (
	"context"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"go.uber.org/zap"
)

// NewHandler serves the schema over GET and POST. Callers mount it behind
// the bearer session middleware.
func NewHandler(r *Resolver) http.Handler {
	srv := handler.New(NewExecutableSchema(r))
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	srv.Use(&ResolverLogger{logger: r.logger})
	return srv
}

// ResolverLogger logs the duration of every service-backed resolver.
type ResolverLogger struct {
	logger *zap.Logger
}

var (
	_ graphql.HandlerExtension = (*ResolverLogger)(nil)
	_ graphql.FieldInterceptor = (*ResolverLogger)(nil)
)

func (l *ResolverLogger) ExtensionName() string { return "ResolverLogger" }

func (l *ResolverLogger) Validate(graphql.ExecutableSchema) error { return nil }

func (l *ResolverLogger) InterceptField(ctx context.Context, next graphql.Resolver) (any, error) {
	start := time.Now()
	res, err := next(ctx)
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || !fc.IsResolver {
		return res, err
	}
	fields := []zap.Field{
		zap.String("field", fc.Object+"."+fc.Field.Name),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn("graphql resolver failed", append(fields, zap.Error(err))...)
	} else {
		l.logger.Debug("graphql resolver", fields...)
	}
	return res, err
}
