package rest

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/listenkit/listenkit/pkg/extension/event"
	"github.com/listenkit/listenkit/pkg/msghub"
	"github.com/listenkit/listenkit/pkg/rest/model"
	"github.com/listenkit/listenkit/pkg/server/web"
	"github.com/listenkit/listenkit/pkg/stringutil"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// options for gorilla connection upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var errMonitorClosed = errors.New("monitor closed")

// actionListener handles action records from the msghub.
type actionListener struct {
	hub       *msghub.Hub
	c         chan *model.JSONActionRecordV1 // Queue of incoming records.
	done      chan struct{}                  // Closed when the socket is finished.
	closeOnce sync.Once
	namespace string // Action type namespace to monitor, "" == all actions.
}

// newActionListener creates a listener and registers it.  Optional namespace parameter will
// restrict records sent to the WebSocket to action types within that namespace.
func newActionListener(hub *msghub.Hub, namespace string) *actionListener {
	al := &actionListener{
		hub:       hub,
		c:         make(chan *model.JSONActionRecordV1, 100),
		done:      make(chan struct{}),
		namespace: namespace,
	}
	hub.AddListener(al)
	return al
}

// Receive handles an incoming record.
func (al *actionListener) Receive(rec event.ActionRecord) error {
	if al.namespace != "" && al.namespace != stringutil.ActionNamespace(rec.Type) {
		// Did not match the watched namespace.
		return nil
	}

	// Enqueue for websocket.
	select {
	case al.c <- &model.JSONActionRecordV1{
		Seq:     rec.Seq,
		Type:    rec.Type,
		Payload: rec.Payload,
		Time:    rec.Time,
	}:
		return nil
	case <-al.done:
		return errMonitorClosed
	}
}

// WSReader makes sure the websocket client is still connected, discards any messages from client
func (al *actionListener) WSReader(conn *websocket.Conn) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()
	defer al.Close()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn().Err(err).Msg("Failed to setup read deadline")
	}
	conn.SetPongHandler(func(string) error {
		slog.Debug().Msg("Got pong")
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn().Err(err).Msg("Failed to set read deadline in pong")
		}
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				// Unexpected close code
				slog.Warn().Err(err).Msg("Socket error")
			} else {
				slog.Debug().Msg("Closing socket")
			}
			break
		}
	}
}

// WSWriter sends queued records to the client and pings it periodically.
func (al *actionListener) WSWriter(conn *websocket.Conn, sent func()) {
	slog := log.With().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Logger()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		al.Close()
	}()

	// Handle records from hub until actionListener is closed
	for {
		select {
		case rec := <-al.c:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for record")
			}
			if conn.WriteJSON(rec) != nil {
				// Write failed
				return
			}
			sent()
		case <-al.done:
			// actionListener closed, exit
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			// Send ping
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn().Err(err).Msg("Failed to set write deadline for ping")
			}
			if conn.WriteMessage(websocket.PingMessage, []byte{}) != nil {
				// Write error
				return
			}
			slog.Debug().Msg("Sent ping")
		}
	}
}

// Close removes the listener registration
func (al *actionListener) Close() {
	al.closeOnce.Do(func() {
		close(al.done)
		al.hub.RemoveListener(al)
	})
}

// MonitorAllActionsV1 is a web handler which upgrades the connection to a websocket and
// notifies the client of every dispatched action.
func MonitorAllActionsV1(
	w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	return monitor(w, req, ctx, "")
}

// MonitorNamespaceActionsV1 is a web handler which upgrades the connection to a websocket and
// notifies the client of actions within a type namespace, ex: "kv" for "kv/set".
func MonitorNamespaceActionsV1(
	w http.ResponseWriter, req *http.Request, ctx *web.Context) (err error) {
	return monitor(w, req, ctx, ctx.Vars["namespace"])
}

func monitor(w http.ResponseWriter, req *http.Request, ctx *web.Context, namespace string) error {
	// Upgrade to Websocket.
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}
	sent := func() {}
	disconnected := func() {}
	if ctx.Metrics != nil {
		sent = ctx.Metrics.MonitorSent
		disconnected = ctx.Metrics.MonitorConnected()
	}
	defer func() {
		_ = conn.Close()
		disconnected()
	}()
	log.Debug().Str("module", "rest").Str("proto", "WebSocket").
		Str("remote", conn.RemoteAddr().String()).Str("namespace", namespace).
		Msg("Upgraded to WebSocket")
	// Create, register listener; then interact with conn.
	al := newActionListener(ctx.Hub, namespace)
	go al.WSWriter(conn, sent)
	al.WSReader(conn)
	return nil
}
