package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/listenkit/listenkit/pkg/rest/model"
)

// httpClient allows http.Client to be mocked for tests
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is returned when the server responds with a status other than 200 OK.
type APIError struct {
	Method     string
	URI        string
	StatusCode int
	Message    string // Server provided error, or the HTTP status text.
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s for %q, unexpected %v: %s", e.Method, e.URI, e.StatusCode, e.Message)
}

// Generic REST restClient
type restClient struct {
	client  httpClient
	baseURL *url.URL
}

// do performs an HTTP request with this client and returns the response.  A nil body sends no
// request body.
func (c *restClient) do(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	target := c.baseURL.JoinPath(uri)
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), r)
	if err != nil {
		return nil, fmt.Errorf("%s for %q: %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}

// doJSON sends in as a JSON body when non-nil, then decodes a 200 OK response into v when
// non-nil.  Other responses produce an *APIError.
func (c *restClient) doJSON(ctx context.Context, method string, uri string, in, v any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s for %q: %w", method, uri, err)
		}
	}
	resp, err := c.do(ctx, method, uri, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return newAPIError(method, uri, resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s for %q, decoding response: %w", method, uri, err)
	}
	return nil
}

func newAPIError(method, uri string, resp *http.Response) *APIError {
	e := &APIError{Method: method, URI: uri, StatusCode: resp.StatusCode, Message: resp.Status}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	var body model.JSONErrorV1
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
		e.Message = body.Error
	}
	return e
}
