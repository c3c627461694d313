// Package web provides the plumbing for the listenkit HTTP API.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/metric"
	"github.com/listenkit/listenkit/pkg/msghub"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/listenkit/listenkit/pkg/stringutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Services are the shared components handed to request handlers through their Context.
type Services struct {
	Store     *store.Store
	Listeners *listener.Middleware
	Hub       *msghub.Hub
	ExtHost   *extension.Host
	Metrics   *metric.Collector
	Gatherer  prometheus.Gatherer // Source for /metrics, defaults to prometheus.DefaultGatherer.
}

var (
	// services holds the components NewContext places in every Context.
	services   *Services
	rootConfig *config.Root

	// Router sends incoming requests to the correct handler function.
	Router = mux.NewRouter()
)

// Server defines an instance of the web server.
type Server struct {
	http     *http.Server // HTTP server.
	listener net.Listener // TCP listener.
	notify   chan error   // Notify on fatal error.
}

// Initialize sets the configuration and services used by NewContext, without creating a server.
func Initialize(conf *config.Root, svc *Services) {
	rootConfig = conf
	services = svc
}

// NewServer sets up things for unit tests or the Start() method.
func NewServer(conf *config.Root, svc *Services) *Server {
	Initialize(conf, svc)

	gatherer := svc.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	prefix := stringutil.MakePathPrefixer(conf.Web.BasePath)
	log.Info().Str("module", "web").Str("phase", "startup").Str("path", prefix("/metrics")).
		Msg("Prometheus metrics exposed")
	Router.Path(prefix("/metrics")).Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	Router.NotFoundHandler = noMatchHandler(http.StatusNotFound, "No route matches URI path")
	Router.MethodNotAllowedHandler = noMatchHandler(http.StatusMethodNotAllowed,
		"Method not allowed for URI path")

	return &Server{
		http: &http.Server{
			Addr:         conf.Web.Addr,
			Handler:      requestLoggingWrapper(Router),
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		notify: make(chan error, 1),
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(ctx context.Context, readyFunc func()) {
	slog := log.With().Str("module", "web").Str("phase", "startup").Logger()
	var err error
	s.listener, err = net.Listen("tcp", s.http.Addr)
	if err != nil {
		slog.Error().Err(err).Msg("HTTP failed to start TCP listener")
		s.notify <- err
		close(s.notify)
		return
	}
	slog.Info().Str("addr", s.listener.Addr().String()).Msg("HTTP listening on tcp")

	// Listener go routine.
	go s.serve(ctx)
	readyFunc()

	// Wait for shutdown.
	<-ctx.Done()
	slog = log.With().Str("module", "web").Str("phase", "shutdown").Logger()
	slog.Debug().Msg("HTTP server shutting down on request")

	// Closing the listener will cause the serve() go routine to exit.
	if err := s.listener.Close(); err != nil {
		slog.Debug().Err(err).Msg("Failed to close HTTP listener")
	}
}

// Addr returns the address the server is listening on, only valid after Start called readyFunc.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// serve begins serving HTTP requests.
func (s *Server) serve(ctx context.Context) {
	// server.Serve blocks until we close the listener.
	err := s.http.Serve(s.listener)

	select {
	case <-ctx.Done():
		// Nop
	default:
		log.Error().Str("module", "web").Err(err).Msg("HTTP server failed")
		s.notify <- err
		close(s.notify)
		return
	}
}

// Notify allows the running HTTP server to be monitored for a fatal error.
func (s *Server) Notify() <-chan error {
	return s.notify
}
