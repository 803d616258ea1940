// Package server runs an application's router behind instrumentation, CORS
// and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ConfigKey is where the server reads its Config from.
const ConfigKey = "server"

// Config holds the server's configuration options.
type Config struct {
	// Address to listen on. Defaults to localhost:3000.
	Listen string `mapstructure:"listen"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // Defaults to 30 seconds.
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // Defaults to 30 seconds.
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`  // Defaults to 2 minutes.

	// How long in-flight requests are given to complete once shutdown has
	// started. Defaults to 10 seconds.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// List of allowed origins for CORS requests. If none are indicated, CORS
	// requests are disabled. Passing in "*" will allow any domain.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultListen is used when Config.Listen is empty.
const DefaultListen = "localhost:3000"

func value(val, defaultValue time.Duration) time.Duration {
	if val == 0 {
		return defaultValue
	}
	return val
}

// Server is the top level object.
type Server struct {
	cfg     Config
	handler http.Handler
	srv     *http.Server
	logger  logrus.FieldLogger
}

// New wraps router with request IDs, metrics, request logging and CORS.
// Metrics are registered with registry.
func New(c Config, router *mux.Router, logger logrus.FieldLogger, registry *prometheus.Registry) (*Server, error) {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.ShutdownTimeout = value(c.ShutdownTimeout, 10*time.Second)

	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Count of all HTTP requests.",
	}, []string{"handler", "code", "method"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler", "method"})

	for _, col := range []prometheus.Collector{requestCounter, requestDuration} {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("server: Failed to register Prometheus HTTP metrics: %v", err)
		}
	}

	// Route middleware runs after matching, so the route template is known.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := handlerName(r)
			m := httpsnoop.CaptureMetrics(next, w, r)
			requestCounter.With(prometheus.Labels{"handler": name, "code": strconv.Itoa(m.Code), "method": r.Method}).Inc()
			requestDuration.With(prometheus.Labels{"handler": name, "method": r.Method}).Observe(m.Duration.Seconds())

			rid, _ := RequestID(r.Context())
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     m.Code,
				"duration":   m.Duration,
				"request_id": rid,
			}).Debug("request served")
		})
	})

	var handler http.Handler = router
	if len(c.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(c.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Auth-App-Id"}),
		)(handler)
	}
	handler = withRequestID(handler)

	s := &Server{
		cfg:     c,
		handler: handler,
		logger:  logger,
		srv: &http.Server{
			Addr:         c.Listen,
			Handler:      handler,
			ReadTimeout:  value(c.ReadTimeout, 30*time.Second),
			WriteTimeout: value(c.WriteTimeout, 30*time.Second),
			IdleTimeout:  value(c.IdleTimeout, 2*time.Minute),
		},
	}
	return s, nil
}

// Mount adds the health and metrics endpoints to r.
func Mount(r *mux.Router, registry *prometheus.Registry) {
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func handlerName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unknown"
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Listen
}

// Serve listens on the configured address and serves until ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener. In-flight requests get up
// to the shutdown timeout to finish.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", ln.Addr().String()).Info("listening")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
