package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/torosent/latbench/internal/measurement"
)

const (
	// StatusTransportFailure is recorded when no response was received
	// (timeout, refused or reset connection).
	StatusTransportFailure = http.StatusInternalServerError

	// DefaultTimeout is the hard per-request timeout.
	DefaultTimeout = time.Second

	maxBodyReadSize = 1024 * 1024
)

// SharedClient is the pooled client used in reuse mode. It is built on first
// use and is safe for concurrent use by every worker.
type SharedClient struct {
	once    sync.Once
	timeout time.Duration
	client  *http.Client
}

// NewSharedClient returns a handle whose client is constructed lazily.
func NewSharedClient(timeout time.Duration) *SharedClient {
	return &SharedClient{timeout: timeout}
}

// Client returns the shared client, constructing it exactly once.
func (s *SharedClient) Client() *http.Client {
	s.once.Do(func() {
		s.client = NewClient(s.timeout)
	})
	return s.client
}

// CloseIdleConnections releases pooled connections if the client was built.
func (s *SharedClient) CloseIdleConnections() {
	s.once.Do(func() {})
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
}

// NewClient creates a connection-pooling client with a hard timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(true),
	}
}

func newTransport(keepAlive bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     !keepAlive,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ResponseHandler extracts extra numeric fields from a received response.
// It is called once per response and never on transport failure.
type ResponseHandler func(resp *http.Response, body []byte) []float64

// Issuer sends templated requests and turns each into a Measurement.
type Issuer struct {
	shared  *SharedClient
	timeout time.Duration
	handler ResponseHandler
}

// NewIssuer creates an issuer. shared may be nil when reuse mode is never used.
func NewIssuer(shared *SharedClient, timeout time.Duration, handler ResponseHandler) *Issuer {
	if timeout < 0 {
		timeout = 0
	}
	return &Issuer{shared: shared, timeout: timeout, handler: handler}
}

// Issue sends one request. With reuse set it goes through the shared pooled
// client, otherwise through a short-lived client that is torn down right
// after. Errors are never returned: a request that got no response is
// recorded with StatusTransportFailure.
func (i *Issuer) Issue(ctx context.Context, tmpl *RequestTemplate, reuse bool) measurement.Measurement {
	start := time.Now()
	req, err := tmpl.Build(ctx)
	if err != nil {
		return measurement.Measurement{Start: start, StatusCode: StatusTransportFailure, Elapsed: time.Since(start)}
	}

	client, release := i.client(reuse)
	defer release()

	resp, err := client.Do(req)
	if err != nil {
		return measurement.Measurement{Start: start, StatusCode: StatusTransportFailure, Elapsed: time.Since(start)}
	}
	defer resp.Body.Close()

	// Body read errors are non-fatal; the handler sees whatever arrived.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	_, _ = io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)

	m := measurement.Measurement{Start: start, StatusCode: resp.StatusCode, Elapsed: elapsed}
	if i.handler != nil {
		m.Extra = i.handler(resp, body)
	}
	return m
}

func (i *Issuer) client(reuse bool) (*http.Client, func()) {
	if reuse && i.shared != nil {
		return i.shared.Client(), func() {}
	}
	transport := newTransport(false)
	client := &http.Client{Timeout: i.timeout, Transport: transport}
	return client, transport.CloseIdleConnections
}
