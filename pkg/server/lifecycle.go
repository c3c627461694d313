// Package server wires up the listenkit daemon.
package server

import (
	"context"
	"fmt"

	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/extension/luahost"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/metric"
	"github.com/listenkit/listenkit/pkg/msghub"
	"github.com/listenkit/listenkit/pkg/poller"
	"github.com/listenkit/listenkit/pkg/rest"
	"github.com/listenkit/listenkit/pkg/rules"
	"github.com/listenkit/listenkit/pkg/server/web"
	"github.com/listenkit/listenkit/pkg/state"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/listenkit/listenkit/pkg/stringutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Services holds the configured and started services.
type Services struct {
	Store       *store.Store
	Listeners   *listener.Middleware
	MsgHub      *msghub.Hub
	ExtHost     *extension.Host
	LuaHost     *luahost.Host // Nil when no script is configured.
	Poller      *poller.Poller
	WebServer   *web.Server
	removeRules func()
}

// Options customize FullAssembly, for use in tests.
type Options struct {
	Registerer prometheus.Registerer // Defaults to prometheus.DefaultRegisterer.
	Gatherer   prometheus.Gatherer   // Defaults to prometheus.DefaultGatherer.
}

// FullAssembly wires up a complete listenkit environment, without starting it.
func FullAssembly(conf *config.Root, opts Options) (*Services, error) {
	slog := log.With().Str("phase", "startup").Logger()

	// Listener middleware and host store.
	extHost := extension.NewHost()
	metrics := metric.New(opts.Registerer)
	mw, err := listener.New(
		listener.WithErrorHandler(extHost.ErrorHandler(
			listener.LogErrors(log.With().Str("module", "listener").Logger()))),
		listener.WithMetrics(metrics),
		listener.WithExtra(conf),
	)
	if err != nil {
		return nil, err
	}
	st := store.New(state.Reduce, state.KV{}, mw.Middleware())
	if _, err := extHost.Attach(mw); err != nil {
		return nil, err
	}
	msgHub := msghub.New(conf.Web.MonitorHistory, extHost)

	// Built-in listeners.
	svcs := &Services{
		Store:       st,
		Listeners:   mw,
		MsgHub:      msgHub,
		ExtHost:     extHost,
		removeRules: func() {},
	}
	if conf.Poller.Enabled {
		svcs.Poller = poller.New(mw,
			poller.WithInterval(conf.Poller.Interval), poller.WithTimeout(conf.Poller.Timeout))
		if err := svcs.Poller.Register(); err != nil {
			return nil, err
		}
	}
	if conf.Rules.Path != "" {
		rs, err := rules.Load(conf.Rules.Path, rules.WithAwaitTimeout(conf.Listener.ConditionTimeout))
		if err != nil {
			return nil, err
		}
		if svcs.removeRules, err = rules.Register(mw, rs); err != nil {
			return nil, err
		}
		slog.Info().Str("module", "rules").Str("path", conf.Rules.Path).Int("count", len(rs)).
			Msg("Rules loaded")
	}

	// Lua extensions.
	svcs.LuaHost, err = luahost.New(conf.Lua, extHost, mw)
	if err != nil {
		svcs.removeRules()
		return nil, fmt.Errorf("lua initialization failed: %w", err)
	}

	// Configure routes and web server.
	prefix := stringutil.MakePathPrefixer(conf.Web.BasePath)
	rest.SetupRoutes(web.Router.PathPrefix(prefix("/api/")).Subrouter())
	svcs.WebServer = web.NewServer(conf, &web.Services{
		Store:     st,
		Listeners: mw,
		Hub:       msgHub,
		ExtHost:   extHost,
		Metrics:   metrics,
		Gatherer:  opts.Gatherer,
	})

	return svcs, nil
}

// Prod wires up the production listenkit environment.
func Prod(conf *config.Root) (*Services, error) {
	return FullAssembly(conf, Options{})
}

// Start all services, returns immediately.  Callers may use Notify to detect failed services.
func (s *Services) Start(ctx context.Context, readyFunc func()) {
	go s.MsgHub.Start(ctx)
	go s.WebServer.Start(ctx, readyFunc)
}

// Notify returns the web server's error notification channel, allowing the process to be
// shutdown if needed.
func (s *Services) Notify() <-chan error {
	return s.WebServer.Notify()
}

// Stop removes the configured listeners, then closes the middleware, waiting up to the context
// deadline for running effects to finish.
func (s *Services) Stop(ctx context.Context) error {
	slog := log.With().Str("phase", "shutdown").Logger()
	s.removeRules()
	if s.Poller != nil {
		s.Poller.Unregister()
	}
	if s.LuaHost != nil {
		s.LuaHost.Close()
	}
	if err := s.Listeners.Close(ctx); err != nil {
		slog.Warn().Str("module", "listener").Err(err).Msg("Listener effects did not finish")
		return err
	}
	slog.Debug().Str("module", "listener").Msg("Listener effects have finished")
	return nil
}
