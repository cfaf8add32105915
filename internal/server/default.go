package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/taskimport/pkg/application"
	"github.com/iota-uz/taskimport/pkg/composables"
	"github.com/iota-uz/taskimport/pkg/configuration"
	"github.com/iota-uz/taskimport/pkg/constants"
	"github.com/iota-uz/taskimport/pkg/httpapi"
	"github.com/iota-uz/taskimport/pkg/middleware"
	"github.com/iota-uz/taskimport/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),

		middleware.TracedMiddleware("database"),
		middleware.Provide(constants.PoolKey, options.Pool),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.AllowedOrigins()...),

		middleware.TracedMiddleware("actor"),
		middleware.WithActor(conf.Actor.UserHeader, conf.Actor.TeamHeader),
	}
	app.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(app, NotFound(), MethodNotAllowed()), nil
}

// RateLimitMiddleware builds the limiter for the import routes. A broken redis
// configuration falls back to the in-memory store.
func RateLimitMiddleware(conf *configuration.Configuration, logger *logrus.Logger) []mux.MiddlewareFunc {
	if !conf.RateLimit.Enabled {
		return nil
	}

	var store limiter.Store
	var err error
	switch conf.RateLimit.Storage {
	case "redis":
		store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
			store = middleware.NewMemoryStore()
		}
	default:
		store = middleware.NewMemoryStore()
	}

	return []mux.MiddlewareFunc{
		middleware.TracedMiddleware("rateLimit"),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}),
	}
}

func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	meta := map[string]string{"path": r.URL.Path}
	if id, ok := composables.UseRequestID(r.Context()); ok {
		meta["request_id"] = id
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
