package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ReportFormat string

const (
	ReportFormatText ReportFormat = "text"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatYAML ReportFormat = "yaml"
)

// Defaults shared by the loader and the flag set.
const (
	DefaultRequests   = 10
	DefaultPrecision  = 2.0
	DefaultConfidence = 0.98
	DefaultMaxTrials  = 1000
	DefaultMaxDropped = 10
	DefaultMinSuccess = 2
	DefaultTimeout    = time.Second
	DefaultOutput     = "response.csv"
)

type Config struct {
	TargetURL    string            `mapstructure:"target"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	Workers      int               `mapstructure:"workers"`
	Requests     int               `mapstructure:"requests"`
	Precision    float64           `mapstructure:"precision"`
	Confidence   float64           `mapstructure:"confidence"`
	MaxTrials    int               `mapstructure:"max_trials"`
	MaxDropped   int               `mapstructure:"max_dropped"`
	MinSuccess   int               `mapstructure:"min_success"`
	Reuse        bool              `mapstructure:"reuse"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Rate         int               `mapstructure:"rate"`
	Arrival      ArrivalModel      `mapstructure:"arrival"`
	Output       string            `mapstructure:"output"`
	Extract      []string          `mapstructure:"extract"`
	Single       bool              `mapstructure:"single"`
	ReportFormat ReportFormat      `mapstructure:"report_format"`
	LogLevel     string            `mapstructure:"log_level"`
	LogJSON      bool              `mapstructure:"log_json"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	ConfigFile   string            `mapstructure:"-"`
}

// TracingConfig configures OTLP span export. Tracing is off unless an
// endpoint is configured here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if strings.TrimSpace(c.Method) == "" {
		issues = append(issues, "method is required")
	}

	if c.Workers > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High worker count configured (%d workers). Ensure you have authorization to test the target system.\n", c.Workers)
	}

	if c.Workers < 1 {
		issues = append(issues, "workers must be >= 1")
	}
	if c.Requests < 1 {
		issues = append(issues, "requests must be >= 1")
	}
	if !(c.Precision > 0) {
		issues = append(issues, "precision must be > 0")
	}
	if !(c.Confidence > 0 && c.Confidence < 1) {
		issues = append(issues, "confidence must be between 0 and 1 (exclusive)")
	}
	if c.MaxTrials < 2 {
		issues = append(issues, "max-trials must be >= 2")
	}
	if c.MaxDropped < 0 {
		issues = append(issues, "max-dropped must be >= 0")
	}
	if c.MinSuccess < 1 {
		issues = append(issues, "min-success must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if strings.TrimSpace(c.Output) == "" {
		issues = append(issues, "output is required")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	for idx, path := range c.Extract {
		if strings.TrimSpace(path) == "" {
			issues = append(issues, fmt.Sprintf("extract[%d]: path cannot be empty", idx))
		}
	}

	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", c.Arrival))
	}

	switch c.ReportFormat {
	case "", ReportFormatText, ReportFormatJSON, ReportFormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("report format %q is not supported (text, json or yaml)", c.ReportFormat))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
