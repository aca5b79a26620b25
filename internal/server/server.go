// Package server exposes the tracking pipeline over HTTP.
//
// # Endpoints
//
//	GET  /healthz    liveness and build version
//	POST /v1/track   run the pipeline on a sequence document
//
// POST /v1/track takes the sequence JSON of package io as its body. Query
// parameters override the server defaults for one request:
//
//	format      json (default), csv, tracks, dot or svg
//	solver      mip or graph
//	weight      overlap, iou or distance
//	division    division cost
//	appear      appearance cost
//	disappear   disappearance cost
//	time_limit  solver time limit, e.g. "30s"
//	refresh     "true" to bypass cached results
//
// Errors are JSON objects {"error": ..., "code": ...} with a status derived
// from the error code.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/bactrack/pkg/observability"
	"github.com/matzehuels/bactrack/pkg/pipeline"
)

// Defaults for [Options].
const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultMaxBodyBytes   = 64 << 20
	DefaultRequestTimeout = 5 * time.Minute
)

// Options configures a [Server].
type Options struct {
	Addr           string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
}

// Server serves tracking requests through a shared [pipeline.Runner].
type Server struct {
	runner   *pipeline.Runner
	defaults pipeline.Options
	logger   *log.Logger
	opts     Options
	router   chi.Router
}

// New creates a server. defaults supplies every pipeline option a request
// does not override; its Formats are ignored.
func New(runner *pipeline.Runner, defaults pipeline.Options, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.Default()
	}
	opts.setDefaults()
	s := &Server{
		runner:   runner,
		defaults: defaults,
		logger:   logger.WithPrefix("api"),
		opts:     opts,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/track", s.handleTrack)
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      s.opts.RequestTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		d := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTP().OnResponse(r.Context(), r.Method, r.URL.Path, status, d)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", d)
	})
}
