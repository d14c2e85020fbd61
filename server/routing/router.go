// Package routing builds the HTTP router from the configured routes.
package routing

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teilomillet/studyhall/config"
	"github.com/teilomillet/studyhall/errors"
	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/middleware"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Router maps configured routes onto named handlers.
type Router struct {
	router     chi.Router
	handlers   map[string]http.Handler
	middleware map[string]Middleware
	logger     *zap.Logger
	cfg        *config.Config
}

// NewRouter creates a router with the global middleware stack and every
// route in cfg.Routes. Routes naming an unknown handler are skipped and
// logged, as are unknown route middleware. m may be nil.
func NewRouter(cfg *config.Config, handlers map[string]http.Handler, mw map[string]Middleware, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		router:     chi.NewRouter(),
		handlers:   handlers,
		middleware: mw,
		logger:     logger,
		cfg:        cfg,
	}

	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(errors.ErrorHandler(logger))
	r.router.Use(middleware.CORS(cfg.Server.AllowedOrigin, http.MethodGet, http.MethodPost))
	r.router.Use(middleware.Logging(logger))
	if m != nil {
		r.router.Use(middleware.PrometheusMetrics(m))
	}

	r.router.NotFound(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, errors.NewNotFoundError(middleware.GetRequestID(req.Context()), req.URL.Path))
	})
	r.router.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		errors.WriteError(w, errors.NewError(
			errors.ValidationError,
			"Method not allowed",
			http.StatusMethodNotAllowed,
			middleware.GetRequestID(req.Context()),
			req.Method+" "+req.URL.Path,
			nil,
		))
	})

	r.setupRoutes()

	return r
}

// setupRoutes registers each configured route with its middleware and
// methods. Methods default to GET.
func (r *Router) setupRoutes() {
	for _, route := range r.cfg.Routes {
		handler, ok := r.handlers[route.Handler]
		if !ok {
			r.logger.Error("handler not found",
				zap.String("handler", route.Handler),
				zap.String("path", route.Path),
			)
			continue
		}

		route := route
		r.router.Group(func(router chi.Router) {
			for _, name := range route.Middleware {
				mw, ok := r.middleware[name]
				if !ok {
					r.logger.Warn("unknown middleware requested",
						zap.String("middleware", name),
						zap.String("path", route.Path),
					)
					continue
				}
				router.Use(mw)
			}

			methods := route.Methods
			if len(methods) == 0 {
				methods = []string{http.MethodGet}
			}
			for _, method := range methods {
				router.Method(strings.ToUpper(method), route.Path, handler)
			}
		})

		r.logger.Debug("route registered",
			zap.String("path", route.Path),
			zap.String("handler", route.Handler),
			zap.Strings("methods", route.Methods),
		)
	}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
