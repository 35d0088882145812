package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ewalden/chatstamp/internal/render"
	"github.com/ewalden/chatstamp/internal/settings"
)

// Server hosts the annotating proxy: every path is forwarded to the
// upstream chat backend through the intercepting transport, except the
// /chatstamp/* routes, which expose the formatted view and the options
// form locally.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger

	httpServer *http.Server
}

// New builds the router. transport must be the interceptor's wrapped
// round tripper; installing it here, before the server accepts traffic,
// guarantees no request reaches the upstream unobserved.
func New(port int, upstreamBase string, transport http.RoundTripper, view *render.View, store *settings.Store, logger *slog.Logger) (*Server, error) {
	upstream, err := url.Parse(upstreamBase)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chatstamp")
	})

	r.Route("/chatstamp", func(r chi.Router) {
		r.Get("/messages", view.HandleMessages)
		r.Get("/conversations", view.HandleConversations)
		r.Get("/settings", handleSettingsForm(store, logger))
		r.Post("/settings", handleSettingsUpdate(store, logger))
	})

	r.Handle("/*", newProxy(upstream, transport, logger))

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}, nil
}

// newProxy forwards requests to the upstream backend. FlushInterval is
// negative so event-stream responses are flushed chunk by chunk; buffering
// them would defeat the tap's no-delay contract.
func newProxy(upstream *url.URL, transport http.RoundTripper, logger *slog.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Transport = transport
	proxy.FlushInterval = -1

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = upstream.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusBadGateway)
	}

	return proxy
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
