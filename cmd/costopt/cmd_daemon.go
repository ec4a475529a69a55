package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/config"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/telemetry"
)

var daemonSweepInterval time.Duration

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run continuous scan and sweep loops",
	Long: `Run costopt as a long-lived daemon.

The daemon runs scan passes at the configured interval, sweeps due
deletion schedules on a shorter cadence, and serves Prometheus metrics.
It shuts down gracefully on SIGTERM/SIGINT.`,
	Example: `  costopt daemon                       # Run with the configured intervals
  costopt daemon --sweep-interval 30m  # Sweep more often`,
	RunE: runDaemonCmd,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().DurationVar(&daemonSweepInterval, "sweep-interval", time.Hour, "How often to sweep due deletion schedules")
}

func runDaemonCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := buildEngineWithTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	fmt.Printf("🚀 Starting costopt daemon\n")
	fmt.Printf("   Regions: %v\n", eng.cfg.Regions)
	fmt.Printf("   Scan interval: %s\n", eng.cfg.Scan.Interval)
	fmt.Printf("   Sweep interval: %s\n", daemonSweepInterval)
	fmt.Printf("   Metrics: http://localhost%s/metrics\n\n", eng.cfg.Telemetry.MetricsAddr)

	var g run.Group

	// Scan loop.
	{
		loopCtx, loopCancel := context.WithCancel(ctx)
		g.Add(func() error {
			return scanLoop(loopCtx, eng)
		}, func(error) {
			loopCancel()
		})
	}

	// Sweep loop.
	{
		loopCtx, loopCancel := context.WithCancel(ctx)
		g.Add(func() error {
			return sweepLoop(loopCtx, eng)
		}, func(error) {
			loopCancel()
		})
	}

	// Metrics server.
	{
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		server := &http.Server{
			Addr:              eng.cfg.Telemetry.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	// Signal handling.
	g.Add(run.SignalHandler(ctx, os.Interrupt, os.Kill))

	err = g.Run()
	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		fmt.Printf("\n👋 Received %s, daemon stopped\n", signalErr.Signal)
		return nil
	}
	return err
}

func scanLoop(ctx context.Context, eng *engine) error {
	// First pass right away, then on the interval.
	if _, err := eng.orch.Run(ctx, time.Now()); err != nil && ctx.Err() == nil {
		return err
	}

	ticker := time.NewTicker(eng.cfg.Scan.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := eng.orch.Run(ctx, time.Now()); err != nil && ctx.Err() == nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func sweepLoop(ctx context.Context, eng *engine) error {
	ticker := time.NewTicker(daemonSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := eng.gate.Sweep(ctx, time.Now()); err != nil && ctx.Err() == nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// buildEngineWithTelemetry wires the OTEL exporters first so the engine's
// instruments bind to the real meter provider, then builds the engine.
func buildEngineWithTelemetry(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitOTEL(ctx, telemetry.Config{
		ServiceName:    "costopt",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTELEndpoint:   cfg.Telemetry.OTELEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, err
	}

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
		return nil, err
	}
	eng.shutdownTelemetry = shutdown
	return eng, nil
}
