package rest

import (
	"github.com/gorilla/mux"
	"github.com/listenkit/listenkit/pkg/server/web"
)

// SetupRoutes populates the routes for the REST interface
func SetupRoutes(r *mux.Router) {
	// API v1
	r.Path("/v1/dispatch").Handler(
		web.Handler(DispatchV1)).Name("DispatchV1").Methods("POST")
	r.Path("/v1/state").Handler(
		web.Handler(StateV1)).Name("StateV1").Methods("GET")
	r.Path("/v1/listeners").Handler(
		web.Handler(ListenersV1)).Name("ListenersV1").Methods("GET")
	r.Path("/v1/listeners").Handler(
		web.Handler(ListenersClearV1)).Name("ListenersClearV1").Methods("DELETE")
	r.Path("/v1/monitor/actions").Handler(
		web.Handler(MonitorAllActionsV1)).Name("MonitorAllActionsV1").Methods("GET")
	r.Path("/v1/monitor/actions/{namespace}").Handler(
		web.Handler(MonitorNamespaceActionsV1)).Name("MonitorNamespaceActionsV1").Methods("GET")
}
