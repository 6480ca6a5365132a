package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/qpixsim/internal/config"
	qpsimmetrics "github.com/dantte-lp/qpixsim/internal/metrics"
	"github.com/dantte-lp/qpixsim/internal/qpsim"
)

const runStatsChunk = 0.01 // seconds of simulated time advanced per interrogation cycle

func runCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a mesh simulation to completion and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			level := cfg.Log.Level
			if logLevel != "" {
				level = logLevel
			}
			var levelVar slog.LevelVar
			levelVar.Set(config.ParseLogLevel(level))
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar}))

			collector := qpsimmetrics.NewCollector(nil)

			mesh, driver, err := buildMeshDriver(cfg, logger, collector)
			if err != nil {
				return fmt.Errorf("build simulation: %w", err)
			}

			if err := runToCompletion(cfg, driver, mesh, collector); err != nil {
				return fmt.Errorf("run simulation: %w", err)
			}

			printSummary(cfg, mesh, driver)
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	return cmd
}

// buildMeshDriver constructs the Mesh and Driver for a run-to-completion
// invocation. It mirrors the daemon's simulation wiring without the
// metrics-server and signal-handling machinery a long-lived process needs.
func buildMeshDriver(cfg *config.Config, logger *slog.Logger, collector *qpsimmetrics.Collector) (*qpsim.Mesh, *qpsim.Driver, error) {
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

// runToCompletion advances driver in fixed chunks up to cfg.Run.Duration,
// injecting background hits and periodic interrogation commands, the same
// way the daemon's polling loop does.
func runToCompletion(cfg *config.Config, driver *qpsim.Driver, mesh *qpsim.Mesh, collector *qpsimmetrics.Collector) error {
	row := cfg.Mesh.Rows - 1 - cfg.Mesh.DaqRow
	col := cfg.Mesh.Cols - 1 - cfg.Mesh.DaqCol
	entry := qpsim.Target{Row: row, Col: col}

	if err := driver.Schedule(qpsim.CommandInterrogate, entry, nil, 0); err != nil {
		return fmt.Errorf("schedule initial interrogation: %w", err)
	}

	for elapsed := 0.0; elapsed < cfg.Run.Duration; elapsed += runStatsChunk {
		target := elapsed + runStatsChunk
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
		collector.SetRunDuration(driver.Now())

		mesh.Each(func(r, c int, node qpsim.Node) {
			if a, ok := node.(*qpsim.Asic); ok && (a.LocalFifo().Full() || a.RemoteFifo().Full()) {
				collector.IncFifoOverflow(r, c)
			}
		})

		if target < cfg.Run.Duration {
			if err := driver.Schedule(qpsim.CommandInterrogate, entry, nil, target); err != nil {
				return fmt.Errorf("schedule interrogation at %v: %w", target, err)
			}
		}
	}
	return nil
}

func printSummary(cfg *config.Config, mesh *qpsim.Mesh, driver *qpsim.Driver) {
	daq := mesh.DaqNode()
	records := daq.Drain()

	fmt.Printf("run complete: %s simulated, %d daq record(s) drained\n", time.Duration(driver.Now()*float64(time.Second)), len(records))
	fmt.Printf("  data words: %d  end words: %d  req words: %d  resp words: %d\n",
		daq.DataWords(), daq.EndWords(), daq.ReqWords(), daq.RespWords())
	fmt.Printf("  asics reporting: %d\n", len(daq.ReceivedAsics()))
}
