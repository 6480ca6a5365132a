package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/qpixsim/internal/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a run configuration without starting a simulation",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig()
			if err != nil {
				return err
			}

			fmt.Printf("configuration OK: %dx%d mesh, daq at (%d,%d), %d asic override(s), %.3fs run\n",
				cfg.Mesh.Rows, cfg.Mesh.Cols, cfg.Mesh.DaqRow, cfg.Mesh.DaqCol, len(cfg.Asics), cfg.Run.Duration)
			return nil
		},
	}
}

// loadRunConfig loads the run configuration from configPath, falling back
// to config.DefaultConfig() when no path was given.
func loadRunConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", configPath, err)
	}
	return cfg, nil
}
