// Package httpc holds the HTTP client shared by every outbound collaborator.
package httpc

import (
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 30 * time.Second

	// ErrorBodyLimit caps how much of a failed response body is kept for errors.
	ErrorBodyLimit = 1024
)

// Client is the shared outbound client. Never use http.DefaultClient.
var Client = NewClient(DefaultTimeout)

// NewClient builds a client with dial and idle timeouts set.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// ErrorBody reads at most ErrorBodyLimit bytes of a failed response.
func ErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, ErrorBodyLimit))
	return string(b)
}
