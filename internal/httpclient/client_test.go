package httpclient

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/latbench/internal/config"
)

func TestBuildRequestWithHeaders(t *testing.T) {
	tmpl, err := NewRequestTemplate("post", "http://example.com/api", map[string]string{
		"content-type": "application/json",
		"X-Function":   "hello",
	}, []byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("expected template, got error: %v", err)
	}

	req, err := tmpl.Build(context.Background())
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != "http://example.com/api" {
		t.Fatalf("unexpected URL %s", req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected canonical Content-Type header, got %q", req.Header.Get("Content-Type"))
	}
	if req.Header.Get("X-Function") != "hello" {
		t.Fatalf("expected X-Function header, got %q", req.Header.Get("X-Function"))
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(body) != `{"hello":"world"}` {
		t.Fatalf("unexpected body %q", body)
	}
	if req.ContentLength != int64(len(body)) {
		t.Fatalf("expected content length %d, got %d", len(body), req.ContentLength)
	}
}

func TestBuildReturnsIndependentRequests(t *testing.T) {
	tmpl, err := NewRequestTemplate("GET", "http://example.com/", map[string]string{"X-A": "1"}, nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	first, _ := tmpl.Build(context.Background())
	first.Header.Set("X-A", "mutated")
	second, _ := tmpl.Build(context.Background())
	if second.Header.Get("X-A") != "1" {
		t.Fatalf("template headers were mutated through a built request")
	}
	if second.Body != nil && second.Body != http.NoBody {
		t.Fatalf("expected empty body for GET template")
	}
}

func TestNewRequestTemplateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		headers map[string]string
	}{
		{name: "empty", target: "  "},
		{name: "scheme", target: "ftp://example.com"},
		{name: "host", target: "http://"},
		{name: "header key", target: "http://example.com", headers: map[string]string{"bad\nkey": "v"}},
		{name: "header value", target: "http://example.com", headers: map[string]string{"X-Key": "a\r\nb"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRequestTemplate("GET", tc.target, tc.headers, nil); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestTemplateFromConfigReadsBodyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "body.json")
	if err := os.WriteFile(path, []byte(`{"n":1}`), 0o600); err != nil {
		t.Fatalf("write body: %v", err)
	}
	tmpl, err := NewRequestTemplateFromConfig(&config.Config{
		TargetURL: "http://example.com",
		Method:    "PUT",
		BodyFile:  path,
	})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if tmpl.Method() != http.MethodPut {
		t.Fatalf("expected PUT, got %s", tmpl.Method())
	}
	req, _ := tmpl.Build(context.Background())
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"n":1}` {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := NewRequestTemplateFromConfig(&config.Config{TargetURL: "http://example.com", BodyFile: dir}); err == nil {
		t.Fatalf("expected error for directory body file")
	}
	if _, err := NewRequestTemplateFromConfig(&config.Config{TargetURL: "http://example.com", Body: "x", BodyFile: path}); err == nil {
		t.Fatalf("expected error for body and body file together")
	}
}

func TestIssueRecordsStatusAndHandlerFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Function") != "hello" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"elapse":0.25,"nested":{"count":3}}`)
	}))
	defer server.Close()

	tmpl, err := NewRequestTemplate("GET", server.URL, map[string]string{"X-Function": "hello"}, nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	issuer := NewIssuer(NewSharedClient(DefaultTimeout), DefaultTimeout, JSONFields("$.elapse", "nested.count", "missing"))

	before := time.Now()
	m := issuer.Issue(context.Background(), tmpl, true)
	if m.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", m.StatusCode)
	}
	if m.Start.Before(before) {
		t.Fatalf("start time recorded before the call")
	}
	if m.Elapsed <= 0 {
		t.Fatalf("expected positive elapsed, got %s", m.Elapsed)
	}
	if len(m.Extra) != 3 || m.Extra[0] != 0.25 || m.Extra[1] != 3 || m.Extra[2] != 0 {
		t.Fatalf("unexpected extra fields %v", m.Extra)
	}
}

func TestIssueTransportFailureUsesSentinel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	tmpl, err := NewRequestTemplate("GET", "http://"+addr+"/", nil, nil)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	var handled int32
	issuer := NewIssuer(NewSharedClient(DefaultTimeout), DefaultTimeout, func(*http.Response, []byte) []float64 {
		atomic.AddInt32(&handled, 1)
		return []float64{1}
	})

	for _, reuse := range []bool{true, false} {
		m := issuer.Issue(context.Background(), tmpl, reuse)
		if m.StatusCode != StatusTransportFailure {
			t.Fatalf("reuse=%v: expected sentinel %d, got %d", reuse, StatusTransportFailure, m.StatusCode)
		}
		if m.Extra != nil {
			t.Fatalf("reuse=%v: expected no extra fields on failure", reuse)
		}
	}
	if atomic.LoadInt32(&handled) != 0 {
		t.Fatalf("handler must not run on transport failure")
	}
}

func TestIssueTimeoutUsesSentinel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tmpl, _ := NewRequestTemplate("GET", server.URL, nil, nil)
	issuer := NewIssuer(NewSharedClient(50*time.Millisecond), 50*time.Millisecond, nil)

	m := issuer.Issue(context.Background(), tmpl, false)
	if m.StatusCode != StatusTransportFailure {
		t.Fatalf("expected sentinel on timeout, got %d", m.StatusCode)
	}
	if m.Elapsed < 50*time.Millisecond {
		t.Fatalf("expected elapsed to cover the timeout, got %s", m.Elapsed)
	}
}

func TestReuseModeSharesConnections(t *testing.T) {
	var conns int32
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt32(&conns, 1)
		}
	}
	server.Start()
	defer server.Close()

	tmpl, _ := NewRequestTemplate("GET", server.URL, nil, nil)
	shared := NewSharedClient(DefaultTimeout)
	issuer := NewIssuer(shared, DefaultTimeout, nil)

	for i := 0; i < 5; i++ {
		if m := issuer.Issue(context.Background(), tmpl, true); m.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d", m.StatusCode)
		}
	}
	if got := atomic.LoadInt32(&conns); got != 1 {
		t.Fatalf("expected a single pooled connection, got %d", got)
	}
	shared.CloseIdleConnections()

	atomic.StoreInt32(&conns, 0)
	for i := 0; i < 3; i++ {
		issuer.Issue(context.Background(), tmpl, false)
	}
	if got := atomic.LoadInt32(&conns); got != 3 {
		t.Fatalf("expected one connection per fresh request, got %d", got)
	}
}

func TestSharedClientConstructedOnce(t *testing.T) {
	shared := NewSharedClient(time.Second)
	if shared.Client() != shared.Client() {
		t.Fatalf("expected the same client instance")
	}
	if shared.Client().Timeout != time.Second {
		t.Fatalf("expected timeout to be applied")
	}
}
