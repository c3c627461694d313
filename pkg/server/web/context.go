package web

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/metric"
	"github.com/listenkit/listenkit/pkg/msghub"
	"github.com/listenkit/listenkit/pkg/store"
)

// Context is passed into every request handler function.
type Context struct {
	Vars       map[string]string
	Store      *store.Store
	Listeners  *listener.Middleware
	Hub        *msghub.Hub
	ExtHost    *extension.Host
	Metrics    *metric.Collector // May be nil.
	RootConfig *config.Root
	IsJSON     bool
}

// Close the Context (currently does nothing)
func (c *Context) Close() {
	// Do nothing
}

// headerMatch returns true if the request header specified by name contains
// the specified value.  Case is ignored.
func headerMatch(req *http.Request, name string, value string) bool {
	name = http.CanonicalHeaderKey(name)
	value = strings.ToLower(value)

	if header := req.Header[name]; header != nil {
		for _, hv := range header {
			if value == strings.ToLower(hv) {
				return true
			}
		}
	}

	return false
}

// NewContext returns a Context for the given HTTP Request.
func NewContext(req *http.Request) (*Context, error) {
	if services == nil {
		return nil, errNotInitialized
	}
	vars := mux.Vars(req)
	ctx := &Context{
		Vars:       vars,
		Store:      services.Store,
		Listeners:  services.Listeners,
		Hub:        services.Hub,
		ExtHost:    services.ExtHost,
		Metrics:    services.Metrics,
		RootConfig: rootConfig,
		IsJSON:     headerMatch(req, "Accept", "application/json"),
	}
	return ctx, nil
}
