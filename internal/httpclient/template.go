package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/torosent/latbench/internal/config"
)

// RequestTemplate is a frozen request description. It is parsed once and is
// safe to share between workers; every Build returns an independent request.
type RequestTemplate struct {
	method  string
	target  string
	headers http.Header
	body    []byte
}

// NewRequestTemplate validates and freezes a request description.
func NewRequestTemplate(method, target string, headers map[string]string, body []byte) (*RequestTemplate, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q: host is required", target)
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	hdrs := http.Header{}
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		hdrs.Set(canonicalKey, value)
	}

	return &RequestTemplate{
		method:  method,
		target:  parsed.String(),
		headers: hdrs,
		body:    append([]byte(nil), body...),
	}, nil
}

// NewRequestTemplateFromConfig builds a template from the request section of
// the configuration, reading the body file once.
func NewRequestTemplateFromConfig(cfg *config.Config) (*RequestTemplate, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	body, err := loadBody(cfg)
	if err != nil {
		return nil, err
	}
	return NewRequestTemplate(cfg.Method, cfg.TargetURL, cfg.Headers, body)
}

func loadBody(cfg *config.Config) ([]byte, error) {
	bodyFile := strings.TrimSpace(cfg.BodyFile)
	if cfg.Body != "" && bodyFile != "" {
		return nil, errors.New("body and body file cannot both be provided")
	}
	if cfg.Body != "" {
		return []byte(cfg.Body), nil
	}
	if bodyFile == "" {
		return nil, nil
	}
	info, err := os.Stat(bodyFile)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("body file %q is a directory", bodyFile)
	}
	data, err := os.ReadFile(bodyFile)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	return data, nil
}

// Method returns the upper-cased HTTP method.
func (t *RequestTemplate) Method() string { return t.method }

// URL returns the normalized target URL.
func (t *RequestTemplate) URL() string { return t.target }

// Build returns a fresh request bound to ctx.
func (t *RequestTemplate) Build(ctx context.Context) (*http.Request, error) {
	if t == nil {
		return nil, errors.New("template cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(t.body) > 0 {
		body = bytes.NewReader(t.body)
	}
	req, err := http.NewRequestWithContext(ctx, t.method, t.target, body)
	if err != nil {
		return nil, err
	}
	req.Header = t.headers.Clone()
	if len(t.body) > 0 {
		req.ContentLength = int64(len(t.body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(t.body)), nil
		}
	}
	return req, nil
}
