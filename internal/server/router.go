package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scenarist-ai/internal/metrics"
)

// Handler builds the router: common middleware, the rate-limited /api
// group and the operational endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	s.setupCommonMiddleware(r)
	s.setupRoutes(r)

	return r
}

func (s *Server) setupCommonMiddleware(r *chi.Mux) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging(s.logger))
	r.Use(withMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
}

func (s *Server) setupRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Get("/options", s.handleGetOptions)
		r.Put("/options", s.handlePutOptions)
		r.Get("/limits", s.handleLimits)
		r.Post("/subscribe", s.handleSubscribe)

		r.Route("/attachments", func(r chi.Router) {
			r.Get("/", s.handleListAttachments)
			r.Post("/", s.handleUpload)
			r.Delete("/{id}", s.handleRemoveAttachment)
		})

		r.Post("/reset", s.handleReset)
		r.Post("/generate", s.handleGenerate)

		r.Route("/result", func(r chi.Router) {
			r.Get("/", s.handleResult)
			r.Get("/sections", s.handleSections)
			r.Post("/sections/{id}/toggle", s.handleToggleSection)
		})

		r.Get("/export/{format}", s.handleExport)
		r.Get("/share", s.handleShare)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Delete("/", s.handleClearHistory)
			r.Get("/{id}", s.handleHistoryEntry)
		})

		r.Route("/thumbnails", func(r chi.Router) {
			r.Get("/", s.handleThumbnails)
			r.Post("/", s.handleVisualizeAll)
			r.Post("/{index}", s.handleVisualize)
		})
	})
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"dur_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// withMetrics labels by route pattern so ids in paths do not explode the
// series count.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
