package client

import (
	"net/http"
	"time"
)

// ClientOptions is a struct that holds the options for the client
type ClientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// ClientOpt configures a Client.
type ClientOpt func(*ClientOptions)

// getDefaultClientOptions returns the default options for the client
func getDefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		timeout: 30 * time.Second,
	}
}

// WithOptTransport sets the transport used by the underlying http.Client.
func WithOptTransport(transport http.RoundTripper) ClientOpt {
	return func(options *ClientOptions) {
		options.transport = transport
	}
}

// WithOptTimeout sets the request timeout, zero disables it.
func WithOptTimeout(timeout time.Duration) ClientOpt {
	return func(options *ClientOptions) {
		options.timeout = timeout
	}
}
