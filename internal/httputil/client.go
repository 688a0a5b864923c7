package httputil

import (
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// NewClient returns a client over rt with a request timeout. A nil rt uses
// DefaultTransport.
func NewClient(rt http.RoundTripper) *http.Client {
	return NewClientWithTimeout(rt, defaultTimeout)
}

func NewClientWithTimeout(rt http.RoundTripper, timeout time.Duration) *http.Client {
	if rt == nil {
		rt = DefaultTransport()
	}

	return &http.Client{Transport: rt, Timeout: timeout}
}

func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       5 * time.Minute,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
}

// NewUserAgentRoundTripper sets the User-Agent header on every request.
func NewUserAgentRoundTripper(userAgent string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = DefaultTransport()
	}

	return &userAgentRoundTripper{userAgent: userAgent, next: next}
}

type userAgentRoundTripper struct {
	userAgent string
	next      http.RoundTripper
}

func (rt *userAgentRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", rt.userAgent)
	return rt.next.RoundTrip(r)
}
