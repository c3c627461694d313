package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/metric"
	"github.com/listenkit/listenkit/pkg/msghub"
	"github.com/listenkit/listenkit/pkg/server/web"
	"github.com/listenkit/listenkit/pkg/state"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://localhost/api/v1"

type testEnv struct {
	router  *mux.Router
	store   *store.Store
	mw      *listener.Middleware
	hub     *msghub.Hub
	extHost *extension.Host
	metrics *metric.Collector
}

func setupWebServer(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	extHost := extension.NewHost()
	metrics := metric.New(prometheus.NewRegistry())
	mw, err := listener.New(
		listener.WithErrorHandler(extHost.ErrorHandler(nil)),
		listener.WithMetrics(metrics))
	require.NoError(t, err)
	s := store.New(state.Reduce, state.KV{}, mw.Middleware())
	_, err = extHost.Attach(mw)
	require.NoError(t, err)
	hub := msghub.New(10, extHost)
	go hub.Start(ctx)

	t.Cleanup(func() {
		cancel()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		_ = mw.Close(closeCtx)
	})

	web.Initialize(&config.Root{}, &web.Services{
		Store:     s,
		Listeners: mw,
		Hub:       hub,
		ExtHost:   extHost,
		Metrics:   metrics,
	})
	router := mux.NewRouter()
	SetupRoutes(router.PathPrefix("/api/").Subrouter())

	return &testEnv{
		router:  router,
		store:   s,
		mw:      mw,
		hub:     hub,
		extHost: extHost,
		metrics: metrics,
	}
}

func (e *testEnv) do(method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
	}
	req.Header.Add("Accept", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
