package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "latbench",
		Example:       "  latbench --target http://localhost:8080/ --header X-Function=hello -c 12 -n 10 -p 2 --confidence 0.98",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Request flags
	flags.String("target", "", "Target URL to benchmark")
	flags.String("method", http.MethodGet, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")
	flags.Bool("reuse", false, "Reuse pooled connections instead of a new connection per request")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.StringSlice("extract", nil, "JSON path of a numeric response field to record as an extra column (repeatable)")

	// Sampling flags
	flags.IntP("workers", "c", 1, "Number of concurrent workers per trial")
	flags.IntP("requests", "n", DefaultRequests, "Requests per trial")
	flags.Float64P("precision", "p", DefaultPrecision, "Target confidence-interval half-width, in percent of the mean")
	flags.Float64("confidence", DefaultConfidence, "Confidence level, between 0 and 1")
	flags.Int("max-trials", DefaultMaxTrials, "Maximum number of informative trials")
	flags.Int("max-dropped", DefaultMaxDropped, "Non-informative trials tolerated before giving up (0 selects the default)")
	flags.Int("min-success", DefaultMinSuccess, "Successful responses a trial needs to be informative")
	flags.IntP("rate", "r", 0, "Requests per second within a trial (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model for paced requests (uniform or poisson)")
	flags.Bool("single", false, "Run one batch of --requests and record it without sampling")

	// Output flags
	flags.StringP("output", "o", DefaultOutput, "Measurement log path")
	flags.String("report-format", string(ReportFormatText), "Summary format: text, json or yaml")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for trial spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nExample:\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Example)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"target":           &cfg.TargetURL,
		"method":           &cfg.Method,
		"output":           &cfg.Output,
		"log-level":        &cfg.LogLevel,
		"metrics-addr":     &cfg.MetricsAddr,
		"tracing-endpoint": &cfg.Tracing.Endpoint,
		"tracing-protocol": &cfg.Tracing.Protocol,
	}
	for name, target := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*target = strings.TrimSpace(val)
	}

	if fs.Changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		cfg.Body = val
		cfg.BodyFile = ""
	}
	if fs.Changed("body-file") {
		val, err := fs.GetString("body-file")
		if err != nil {
			return err
		}
		cfg.BodyFile = val
		cfg.Body = ""
	}

	intFlags := map[string]*int{
		"workers":     &cfg.Workers,
		"requests":    &cfg.Requests,
		"max-trials":  &cfg.MaxTrials,
		"max-dropped": &cfg.MaxDropped,
		"min-success": &cfg.MinSuccess,
		"rate":        &cfg.Rate,
	}
	for name, target := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*target = val
	}

	floatFlags := map[string]*float64{
		"precision":  &cfg.Precision,
		"confidence": &cfg.Confidence,
	}
	for name, target := range floatFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetFloat64(name)
		if err != nil {
			return err
		}
		*target = val
	}

	boolFlags := map[string]*bool{
		"reuse":            &cfg.Reuse,
		"single":           &cfg.Single,
		"log-json":         &cfg.LogJSON,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, target := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*target = val
	}

	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("report-format") {
		val, err := fs.GetString("report-format")
		if err != nil {
			return err
		}
		cfg.ReportFormat = ReportFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("extract") {
		vals, err := fs.GetStringSlice("extract")
		if err != nil {
			return err
		}
		cfg.Extract = vals
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
