package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		Method:       http.MethodGet,
		Headers:      map[string]string{},
		Workers:      1,
		Requests:     DefaultRequests,
		Precision:    DefaultPrecision,
		Confidence:   DefaultConfidence,
		MaxTrials:    DefaultMaxTrials,
		MaxDropped:   DefaultMaxDropped,
		MinSuccess:   DefaultMinSuccess,
		Timeout:      DefaultTimeout,
		Arrival:      ArrivalModelUniform,
		Output:       DefaultOutput,
		ReportFormat: ReportFormatText,
		LogLevel:     "info",
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	cfg.Output = strings.TrimSpace(cfg.Output)
	cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(string(cfg.Arrival))))
	cfg.ReportFormat = ReportFormat(strings.ToLower(strings.TrimSpace(string(cfg.ReportFormat))))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			cfg.Method = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	if raw, ok := lookupSetting(settings, "bodyfile", "body_file", "body-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bodyFile: %w", err)
		}
		cfg.BodyFile = val
	}

	ints := []struct {
		keys   []string
		target *int
	}{
		{[]string{"workers", "threads"}, &cfg.Workers},
		{[]string{"requests"}, &cfg.Requests},
		{[]string{"maxtrials", "max_trials", "max-trials"}, &cfg.MaxTrials},
		{[]string{"maxdropped", "max_dropped", "max-dropped"}, &cfg.MaxDropped},
		{[]string{"minsuccess", "min_success", "min-success"}, &cfg.MinSuccess},
		{[]string{"rate"}, &cfg.Rate},
	}
	for _, field := range ints {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.target = val
		}
	}

	if raw, ok := lookupSetting(settings, "precision"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("precision: %w", err)
		}
		cfg.Precision = val
	}

	if raw, ok := lookupSetting(settings, "confidence"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("confidence: %w", err)
		}
		cfg.Confidence = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	bools := []struct {
		keys   []string
		target *bool
	}{
		{[]string{"reuse"}, &cfg.Reuse},
		{[]string{"single"}, &cfg.Single},
		{[]string{"logjson", "log_json", "log-json"}, &cfg.LogJSON},
	}
	for _, field := range bools {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.target = val
		}
	}

	strs := []struct {
		keys   []string
		target *string
	}{
		{[]string{"output"}, &cfg.Output},
		{[]string{"loglevel", "log_level", "log-level"}, &cfg.LogLevel},
		{[]string{"metricsaddr", "metrics_addr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, field := range strs {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.target = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrival_model", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		cfg.Arrival = ArrivalModel(val)
	}

	if raw, ok := lookupSetting(settings, "reportformat", "report_format", "report-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("reportFormat: %w", err)
		}
		cfg.ReportFormat = ReportFormat(val)
	}

	if raw, ok := lookupSetting(settings, "extract"); ok {
		paths, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		cfg.Extract = paths
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	out := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return base, fmt.Errorf("endpoint: %w", err)
		}
		out.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return base, fmt.Errorf("protocol: %w", err)
		}
		out.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return base, fmt.Errorf("insecure: %w", err)
		}
		out.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return base, fmt.Errorf("service_name: %w", err)
		}
		out.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return base, fmt.Errorf("sample_rate: %w", err)
		}
		out.SampleRate = val
	}
	return out, nil
}
