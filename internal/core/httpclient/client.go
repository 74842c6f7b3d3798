// Package httpclient configures the HTTP client used to fetch tiles.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the client used for upstream tile requests. A
// non-positive timeout falls back to 30s.
func NewOutbound(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 16
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
