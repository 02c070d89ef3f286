package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/swncrew-core/internal/app"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/config"
	"github.com/nerrad567/swncrew-core/internal/infrastructure/logging"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the mission scheduler and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rootOpts.ConfigPath, info)
		},
	}
}

func runServe(ctx context.Context, configPath string, info BuildInfo) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SWNCREW Core",
		"version", info.Version,
		"commit", info.Commit,
		"build_date", info.Date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, info.Version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	a, err := app.New(ctx, cfg, log, info.Version)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return err
	}

	log.Info("SWNCREW Core stopped")
	return nil
}
