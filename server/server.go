package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tgvtracker.dev/delays"
)

const ShutdownTimeout = 10 * time.Second

type Options struct {
	Manager *delays.Manager

	// Table queried when a request doesn't name one.
	DefaultTable string

	// Origins allowed to make credentialed cross-origin requests.
	CORSOrigins []string

	// If set, HTTP metrics are registered here and /metrics serves
	// its contents.
	Registry *prometheus.Registry

	Logger *slog.Logger
}

// HTTP API over a delays.Manager.
type Server struct {
	manager      *delays.Manager
	defaultTable string
	logger       *slog.Logger
	validate     *validator.Validate
	origins      map[string]bool
	requests     *prometheus.HistogramVec

	handler http.Handler
}

func New(opts Options) *Server {
	s := &Server{
		manager:      opts.Manager,
		defaultTable: opts.DefaultTable,
		logger:       opts.Logger,
		validate:     validator.New(),
		origins:      map[string]bool{},
	}
	if s.defaultTable == "" {
		s.defaultTable = delays.DefaultTable
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, o := range opts.CORSOrigins {
		s.origins[o] = true
	}

	r := mux.NewRouter()

	if opts.Registry != nil {
		s.requests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgv_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"})
		opts.Registry.MustRegister(s.requests)
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	r.Use(s.observe)

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/count_rows", s.handleCountRows).Methods("GET")
	r.HandleFunc("/api/delays", s.handleDelays).Methods("GET")
	r.HandleFunc("/api/stations/count", s.handleStationCount).Methods("GET")

	// Preflight requests never reach the router's method matching.
	s.handler = s.cors(r)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("TGV Tracker API starting up", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("TGV Tracker API shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
