// Package cli implements the swncrew command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigPath is used when neither --config nor SWNCREW_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the swncrew CLI.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "swncrew",
		Short: "SWNCREW Core - flow mission scheduler",
		Long: `SWNCREW Core queues flow-control missions and drives a water test rig
through each mission's flow trajectory, one mission at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", configPathFromEnv(),
		"path to the YAML configuration file (env SWNCREW_CONFIG)")

	cmd.AddCommand(NewServeCommand(opts, info))
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewVersionCommand(info))

	return cmd
}

// configPathFromEnv returns SWNCREW_CONFIG if set, otherwise the default.
func configPathFromEnv() string {
	if path := os.Getenv("SWNCREW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
