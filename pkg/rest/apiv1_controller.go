package rest

import (
	"net/http"
	"strings"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/extension/event"
	"github.com/listenkit/listenkit/pkg/rest/model"
	"github.com/listenkit/listenkit/pkg/server/web"
	"github.com/rs/zerolog/log"
)

// controlPrefix is shared by the listener middleware control action types, which carry Go
// values and cannot be submitted as JSON.
const controlPrefix = "listenerMiddleware/"

// DispatchV1 dispatches the action in the request body and renders the resulting state.
func DispatchV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	var body model.JSONDispatchRequestV1
	if err := web.DecodeJSON(req, &body); err != nil {
		return web.RenderError(w, http.StatusBadRequest, err.Error())
	}
	if body.Type == "" {
		return web.RenderError(w, http.StatusBadRequest, "type is required")
	}

	inbound := event.InboundAction{Type: body.Type, Payload: body.Payload, Origin: req.RemoteAddr}
	if verdict := ctx.ExtHost.Events.BeforeActionDispatched.Emit(&inbound); verdict != nil {
		if verdict.Reject {
			log.Debug().Str("module", "rest").Str("type", inbound.Type).
				Str("reason", verdict.Reason).Msg("Dispatch rejected by extension")
			return web.RenderError(w, http.StatusForbidden, verdict.Reason)
		}
		if verdict.Action != nil {
			inbound = *verdict.Action
		}
	}
	if inbound.Type == "" || strings.HasPrefix(inbound.Type, controlPrefix) {
		return web.RenderError(w, http.StatusBadRequest, "action type not allowed: "+inbound.Type)
	}

	a := action.Action{Type: inbound.Type, Payload: inbound.Payload}
	if len(body.Meta) > 0 {
		a.Meta = body.Meta
	}
	ctx.Store.Dispatch(a)
	return web.RenderJSON(w, &model.JSONDispatchResponseV1{
		Type:  inbound.Type,
		State: ctx.Store.GetState(),
	})
}

// StateV1 renders the current state.
func StateV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	return web.RenderJSON(w, ctx.Store.GetState())
}

// ListenersV1 renders the number of registered listeners.
func ListenersV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	return web.RenderJSON(w, &model.JSONListenersV1{Count: ctx.Listeners.ListenerCount()})
}

// ListenersClearV1 removes every listener, including those registered by extensions.
func ListenersClearV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	log.Info().Str("module", "rest").Str("remote", req.RemoteAddr).Msg("Clearing all listeners")
	ctx.Listeners.ClearListeners()
	return web.RenderJSON(w, &model.JSONListenersV1{Count: ctx.Listeners.ListenerCount()})
}
