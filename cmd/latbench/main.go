package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/latbench/internal/config"
	"github.com/torosent/latbench/internal/httpclient"
	"github.com/torosent/latbench/internal/logging"
	"github.com/torosent/latbench/internal/metrics"
	"github.com/torosent/latbench/internal/output"
	"github.com/torosent/latbench/internal/recorder"
	"github.com/torosent/latbench/internal/runner"
	"github.com/torosent/latbench/internal/sampler"
	"github.com/torosent/latbench/internal/tracing"
	"github.com/torosent/latbench/internal/trial"
)

const shutdownTimeout = 5 * time.Second

// errNotConverged is returned when the trial cap is hit before the target
// precision; main maps it to exit status 2.
var errNotConverged = errors.New("target precision not reached")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errNotConverged) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := ulid.Make().String()
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", runID))
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	tmpl, err := httpclient.NewRequestTemplateFromConfig(cfg)
	if err != nil {
		return err
	}
	shared := httpclient.NewSharedClient(cfg.Timeout)
	defer shared.CloseIdleConnections()

	var handler httpclient.ResponseHandler
	if len(cfg.Extract) > 0 {
		handler = httpclient.JSONFields(cfg.Extract...)
	}
	issuer := httpclient.NewIssuer(shared, cfg.Timeout, handler)
	r := runner.New(issuer, tmpl, runner.Options{
		Workers:       cfg.Workers,
		Reuse:         cfg.Reuse,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival),
		Logger:        logger,
	})

	collector := metrics.NewCollector()
	sinks := []trial.Sink{collector}

	progressOut := stdout
	if cfg.ReportFormat != config.ReportFormatText && cfg.ReportFormat != "" {
		progressOut = os.Stderr
	}
	observers := []sampler.Observer{output.NewProgressPrinter(progressOut)}

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter()
		stop, err := serveMetrics(cfg.MetricsAddr, exporter.Handler(), logger)
		if err != nil {
			return err
		}
		defer stop()
		sinks = append(sinks, exporter)
		observers = append(observers, exporter)
	}

	rec := recorder.New(logger)
	if err := rec.Open(cfg.Output); err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	trialOpts := trial.Options{
		MinSuccess: cfg.MinSuccess,
		Sinks:      sinks,
		Logger:     logger,
	}

	summary := output.Summary{
		RunID:  runID,
		Target: tmpl.URL(),
		Output: cfg.Output,
	}

	logger.Info("starting run",
		zap.String("target", tmpl.URL()),
		zap.String("method", tmpl.Method()),
		zap.Int("workers", cfg.Workers),
		zap.Int("requests", cfg.Requests),
		zap.Bool("reuse", cfg.Reuse),
		zap.Bool("single", cfg.Single),
	)

	start := time.Now()
	converged := true
	if cfg.Single {
		summary.Mode = output.ModeSingle
		_, runErr := trial.RunBatch(ctx, r, rec, cfg.Requests, trialOpts)
		if err := errors.Join(runErr, rec.Close()); err != nil {
			return err
		}
	} else {
		summary.Mode = output.ModeSampling
		res, err := sampler.Run(ctx, sampler.Options{
			TargetPrecision: cfg.Precision,
			Confidence:      cfg.Confidence,
			SampleSize:      cfg.Requests,
			MaxTrials:       cfg.MaxTrials,
			MaxDropped:      cfg.MaxDropped,
			Recorder:        rec,
			Observers:       observers,
			Tracer:          tp.Tracer(),
			Logger:          logger,
		}, trial.New(r, rec, trialOpts))
		if err != nil {
			return err
		}
		summary.Sampling = output.NewSamplingSummary(res, cfg.Precision, cfg.Confidence)
		converged = res.Converged
	}

	summary.Recorded = rec.Written()
	summary.Stats = collector.Stats(time.Since(start))
	if err := printSummary(stdout, cfg.ReportFormat, summary); err != nil {
		return err
	}

	if !converged {
		return fmt.Errorf("%w after %d trials", errNotConverged, summary.Sampling.Trials)
	}
	return nil
}

func printSummary(w io.Writer, format config.ReportFormat, summary output.Summary) error {
	switch format {
	case config.ReportFormatJSON:
		return output.PrintJSONReport(w, summary)
	case config.ReportFormatYAML:
		return output.PrintYAMLReport(w, summary)
	default:
		output.PrintReport(w, summary)
		return nil
	}
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

// serveMetrics binds addr synchronously so a bad address fails the run, then
// serves handler on /metrics until the returned stop function is called.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
