// Package client provides a basic REST client for listenkit
package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/listenkit/listenkit/pkg/rest/model"
)

// Client accesses the listenkit REST API v1
type Client struct {
	restClient
}

// New creates a new v1 REST API client given the base URL of a listenkit server, ex:
// "http://localhost:9000"
func New(baseURL string, opts ...ClientOpt) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	options := getDefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	c := &Client{
		restClient{
			client: &http.Client{
				Transport: options.transport,
				Timeout:   options.timeout,
			},
			baseURL: parsedURL,
		},
	}
	return c, nil
}

// Dispatch submits an action and returns the resulting state.
func (c *Client) Dispatch(
	ctx context.Context, actionType string, payload any) (*model.JSONDispatchResponseV1, error) {
	req := &model.JSONDispatchRequestV1{Type: actionType, Payload: payload}
	resp := &model.JSONDispatchResponseV1{}
	if err := c.doJSON(ctx, "POST", "/api/v1/dispatch", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// State returns the current state, decoded from JSON.
func (c *Client) State(ctx context.Context) (state any, err error) {
	err = c.doJSON(ctx, "GET", "/api/v1/state", nil, &state)
	return state, err
}

// ListenerCount returns the number of registered listeners.
func (c *Client) ListenerCount(ctx context.Context) (int, error) {
	var resp model.JSONListenersV1
	if err := c.doJSON(ctx, "GET", "/api/v1/listeners", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ClearListeners removes every listener from the server.
func (c *Client) ClearListeners(ctx context.Context) error {
	return c.doJSON(ctx, "DELETE", "/api/v1/listeners", nil, nil)
}
