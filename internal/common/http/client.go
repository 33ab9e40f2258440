// internal/common/http/client.go
package http

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Client is the outbound HTTP client used for backend calls.
type Client struct {
	httpClient *http.Client
}

// Options configures NewUpstreamClient.
type Options struct {
	// Timeout bounds a whole request. Per-call deadlines come from the
	// request context and may be shorter.
	Timeout time.Duration
	// HTTP2 enables HTTP/2. For http:// backends this speaks h2c (prior
	// knowledge, no TLS).
	HTTP2 bool
	// Cleartext selects h2c when HTTP2 is set.
	Cleartext bool
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewUpstreamClient builds a client that never follows redirects, so that
// backend 3xx responses and their Set-Cookie headers reach the browser as-is.
func NewUpstreamClient(opts Options) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: newTransport(opts),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func newTransport(opts Options) http.RoundTripper {
	if opts.HTTP2 && opts.Cleartext {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
			ReadIdleTimeout: 30 * time.Second,
		}
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 32
	t.IdleConnTimeout = 90 * time.Second
	if opts.HTTP2 {
		// negotiated through ALPN on TLS connections
		if err := http2.ConfigureTransport(t); err != nil {
			t.ForceAttemptHTTP2 = true
		}
	}
	return t
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// HTTPClient exposes the underlying client for SDKs that accept one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
