package listener

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Option configures a Middleware.
type Option func(*options)

type options struct {
	extra      any
	onError    ErrorHandler
	onErrorSet bool
	onFault    FaultHandler
	metrics    Metrics
	logger     zerolog.Logger
}

func defaultOptions() *options {
	return &options{
		metrics: noopMetrics{},
		logger:  log.With().Str("module", "listener").Logger(),
	}
}

// WithExtra sets the value returned by API.Extra to every effect.
func WithExtra(extra any) Option {
	return func(o *options) { o.extra = extra }
}

// WithErrorHandler replaces the default handler, which logs listener errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
		o.onErrorSet = true
	}
}

// WithFaultHandler sets the handler for panics raised by the ErrorHandler.  The default logs
// them.
func WithFaultHandler(h FaultHandler) Option {
	return func(o *options) { o.onFault = h }
}

// WithMetrics installs a metrics collector.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger used for debug output and by the default handlers.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}
