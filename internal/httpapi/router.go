// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/observability"
)

// corsMaxAge is the preflight cache lifetime in seconds.
const corsMaxAge = 300

// Options configures the API router.
type Options struct {
	// AllowedOrigins are glob patterns matched against the Origin header,
	// with '.' as the segment separator. Empty disables CORS.
	AllowedOrigins []string
	// ExposeResetLink includes the reset link in the forgot-password
	// response body.
	ExposeResetLink bool
	// Metrics records per-route request counts and latency when non-nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewRouter builds the API handler.
func NewRouter(svc Service, opts Options) (http.Handler, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: opts.Logger, exposeLink: opts.ExposeResetLink}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		router.Use(instrument(opts.Metrics))
	}
	if len(opts.AllowedOrigins) > 0 {
		match, err := originMatcher(opts.AllowedOrigins)
		if err != nil {
			return nil, err
		}
		router.Use(cors.Handler(cors.Options{
			AllowOriginFunc: func(_ *http.Request, origin string) bool { return match(origin) },
			AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:  []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:          corsMaxAge,
		}))
	}

	router.Route("/admins", func(r chi.Router) {
		r.Post("/", h.register)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.edit)
		r.Delete("/{id}", h.delete)
	})
	router.Post("/forgotpassword", h.forgotPassword)
	router.Get("/resetpassword/{token}", h.checkResetToken)
	router.Post("/resetpassword/{token}", h.resetPassword)

	return router, nil
}

// originMatcher compiles origin patterns into a single predicate.
func originMatcher(patterns []string) (func(string) bool, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("CORS_ORIGIN_INVALID").With("pattern", pattern).Wrap(err)
		}
		globs = append(globs, g)
	}
	return func(origin string) bool {
		for _, g := range globs {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}, nil
}

// instrument records request metrics labelled by the matched route pattern,
// keeping label cardinality independent of ids and tokens in the path.
func instrument(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
