package telegram

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Timeouts bound the HTTP calls made to the Bot API.
type Timeouts struct {
	// Connect limits dialing and the TLS handshake.
	Connect time.Duration
	// Read limits the wait for response headers.
	Read time.Duration
	// Pool is how long an idle connection is kept.
	Pool time.Duration
}

// NewHTTPClient returns a client with the given timeouts.
func NewHTTPClient(t Timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   t.Connect,
			ResponseHeaderTimeout: t.Read,
			IdleConnTimeout:       t.Pool,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   20,
		},
	}
}

// ctxClient binds every request to ctx so long polls stop on shutdown.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
