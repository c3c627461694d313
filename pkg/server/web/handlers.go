package web

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errNotInitialized = errors.New("web: services not initialized")

// Handler is a function type that handles an HTTP request in listenkit.  A returned error is
// logged and rendered as a 500 JSON error.
type Handler func(http.ResponseWriter, *http.Request, *Context) error

// ServeHTTP builds the context and passes onto the real handler.
func (h Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx, err := NewContext(req)
	if err == nil {
		defer ctx.Close()
		err = h(w, req, ctx)
	}
	if err != nil {
		requestLogger(req).Error().Err(err).Msg("Error handling request")
		_ = RenderError(w, http.StatusInternalServerError, err.Error())
	}
}

// requestLogger returns a web logger describing req.
func requestLogger(req *http.Request) *zerolog.Logger {
	l := log.With().Str("module", "web").Str("remote", req.RemoteAddr).
		Str("method", req.Method).Str("path", req.RequestURI).Logger()
	return &l
}

// noMatchHandler creates a handler for requests that Gorilla mux is unable to route, rendering
// message as a JSON error with statusCode.
func noMatchHandler(statusCode int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestLogger(req).Warn().Int("status", statusCode).Msg(message)
		_ = RenderError(w, statusCode, message)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack supports websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("web: response does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestLoggingWrapper returns middleware that logs client requests with their status and
// duration.
func requestLoggingWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		requestLogger(req).Debug().Str("proto", req.Proto).Int("status", rec.status).
			Dur("elapsed", time.Since(start)).Msg("Request")
	})
}
