// qpixsim runs a bounded discrete-event simulation of a 2D mesh of Q-Pix
// readout ASICs and reports the resulting DAQ statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/qpixsim/internal/config"
	qpsimmetrics "github.com/dantte-lp/qpixsim/internal/metrics"
	"github.com/dantte-lp/qpixsim/internal/qpsim"
	appversion "github.com/dantte-lp/qpixsim/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics HTTP server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging a stalled run.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// statsPollInterval is how often the background run loop pushes active-asic
// and run-duration gauges while the simulation is in progress.
const statsPollInterval = 200 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("qpixsim starting",
		slog.String("version", appversion.Version),
		slog.Int("mesh_rows", cfg.Mesh.Rows),
		slog.Int("mesh_cols", cfg.Mesh.Cols),
		slog.Float64("duration_seconds", cfg.Run.Duration),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := qpsimmetrics.NewCollector(reg)

	mesh, driver, err := buildSimulation(cfg, logger, collector)
	if err != nil {
		logger.Error("failed to build simulation", slog.String("error", err.Error()))
		return 1
	}

	if err := runDaemon(cfg, driver, mesh, reg, collector, logger, fr); err != nil {
		logger.Error("qpixsim exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("qpixsim stopped")
	return 0
}

// buildSimulation constructs the Mesh and Driver from cfg, applying any
// per-cell AsicConfig overrides on top of the mesh-wide default.
func buildSimulation(cfg *config.Config, logger *slog.Logger, collector *qpsimmetrics.Collector) (*qpsim.Mesh, *qpsim.Driver, error) {
	base := qpsim.DefaultConfig(qpsim.North)
	base.SendRemote = false
	base.EnablePush = cfg.Run.PushMode

	mesh, err := qpsim.NewMesh(cfg.Mesh.Rows, cfg.Mesh.Cols, cfg.Mesh.DaqRow, cfg.Mesh.DaqCol, base, cfg.Run.Seed,
		qpsim.WithMeshLogger(logger),
		qpsim.WithMeshStateRecorder(collector),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build mesh: %w", err)
	}

	mesh.Each(func(_, _ int, node qpsim.Node) {
		if a, ok := node.(*qpsim.Asic); ok {
			a.RandomRate = cfg.Run.RandomRate
		}
	})

	for _, override := range cfg.Asics {
		asic, err := mesh.AsicAt(override.Row, override.Col)
		if err != nil {
			return nil, nil, fmt.Errorf("apply override for (%d,%d): %w", override.Row, override.Col, err)
		}
		c := asic.Config
		if override.Timeout != 0 {
			c.Timeout = override.Timeout
		}
		if override.PTimeout != 0 {
			c.PTimeout = override.PTimeout
		}
		c.ManRoute = override.ManRoute
		c.SendRemote = override.SendRemote
		asic.Config = c
	}

	driver := qpsim.NewDriver(mesh, qpsim.WithDriverLogger(logger))
	return mesh, driver, nil
}

// interrogationEntry picks a cell diagonally opposite the DAQ node to seed
// periodic Interrogate commands from — any cell with at least one wired
// neighbor works, but the opposite corner keeps the command's first hop
// away from the DAQ's own traffic.
func interrogationEntry(cfg *config.Config) qpsim.Target {
	row := cfg.Mesh.Rows - 1 - cfg.Mesh.DaqRow
	col := cfg.Mesh.Cols - 1 - cfg.Mesh.DaqCol
	return qpsim.Target{Row: row, Col: col}
}

// runDaemon drives the simulation to completion on a background goroutine
// while serving the metrics HTTP endpoint, using the same errgroup +
// signal.NotifyContext graceful-shutdown shape as a long-lived network
// daemon even though this process has a natural end state.
func runDaemon(
	cfg *config.Config,
	driver *qpsim.Driver,
	mesh *qpsim.Mesh,
	reg *prometheus.Registry,
	collector *qpsimmetrics.Collector,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &net.ListenConfig{}, metricsSrv)
	})

	runDone := make(chan error, 1)
	g.Go(func() error {
		runDone <- runMesh(gCtx, cfg, driver, mesh, collector, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gracefulShutdown(gCtx, logger, fr, metricsSrv)
		case err := <-runDone:
			notifyStopping(logger)
			if fr != nil {
				fr.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if shutErr := metricsSrv.Shutdown(shutdownCtx); shutErr != nil {
				return errors.Join(err, fmt.Errorf("shutdown metrics server: %w", shutErr))
			}
			return err
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// runMesh drives the Driver to cfg.Run.Duration, polling run statistics
// into collector at statsPollInterval and logging a final summary.
func runMesh(ctx context.Context, cfg *config.Config, driver *qpsim.Driver, mesh *qpsim.Mesh, collector *qpsimmetrics.Collector, logger *slog.Logger) error {
	const statsChunk = float64(statsPollInterval) / float64(time.Second)

	entry := interrogationEntry(cfg)
	if err := driver.Schedule(qpsim.CommandInterrogate, entry, nil, 0); err != nil {
		return fmt.Errorf("schedule initial interrogation: %w", err)
	}

	for elapsed := 0.0; elapsed < cfg.Run.Duration; elapsed += statsChunk {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target := elapsed + statsChunk
		if target > cfg.Run.Duration {
			target = cfg.Run.Duration
		}

		mesh.Each(func(_, _ int, node qpsim.Node) {
			if a, ok := node.(*qpsim.Asic); ok {
				a.GeneratePoissonHits(target)
			}
		})

		if err := driver.RunUntil(target); err != nil {
			return fmt.Errorf("run until %v: %w", target, err)
		}
		collector.SetActiveAsics(countActive(mesh))
		collector.SetRunDuration(driver.Now())

		mesh.Each(func(row, col int, node qpsim.Node) {
			if a, ok := node.(*qpsim.Asic); ok && (a.LocalFifo().Full() || a.RemoteFifo().Full()) {
				collector.IncFifoOverflow(row, col)
			}
		})

		if target < cfg.Run.Duration {
			if err := driver.Schedule(qpsim.CommandInterrogate, entry, nil, target); err != nil {
				return fmt.Errorf("schedule interrogation at %v: %w", target, err)
			}
		}
	}

	daq := mesh.DaqNode()
	for _, rec := range daq.Drain() {
		collector.IncDaqRecords(rec.WordType.String())
	}
	logger.Info("run complete",
		slog.Float64("elapsed_seconds", driver.Now()),
		slog.Int("data_words", daq.DataWords()),
		slog.Int("end_words", daq.EndWords()),
		slog.Int("req_words", daq.ReqWords()),
		slog.Int("resp_words", daq.RespWords()),
		slog.Int("received_asics", len(daq.ReceivedAsics())),
	)
	return nil
}

// countActive reports how many mesh cells are currently outside StateIdle.
func countActive(mesh *qpsim.Mesh) int {
	n := 0
	mesh.Each(func(_, _ int, node qpsim.Node) {
		if a, ok := node.(*qpsim.Asic); ok && a.State != qpsim.StateIdle {
			n++
		}
	})
	return n
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// -------------------------------------------------------------------------
// Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, fr *trace.FlightRecorder, srv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Flight Recorder
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)
	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server) error {
	ln, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", srv.Addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
