package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/listenkit/listenkit/pkg/rest/model"
)

// Monitor opens the action monitor websocket.  The server replays its recent history, then
// streams newly dispatched actions.  An empty namespace monitors every action type.  The
// returned channel is closed when ctx is done or the connection fails.
func (c *Client) Monitor(ctx context.Context, namespace string) (<-chan model.JSONActionRecordV1, error) {
	uri := "/api/v1/monitor/actions"
	if namespace != "" {
		uri += "/" + url.PathEscape(namespace)
	}
	u := c.baseURL.JoinPath(uri)
	switch {
	case strings.EqualFold(u.Scheme, "https"):
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("GET for %q: %w", uri, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	records := make(chan model.JSONActionRecordV1)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(records)
		for {
			var rec model.JSONActionRecordV1
			if err := conn.ReadJSON(&rec); err != nil {
				return
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return records, nil
}
