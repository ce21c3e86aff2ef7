package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meilifed/internal/config"
	logpkg "github.com/kailas-cloud/meilifed/internal/logger"
	"github.com/kailas-cloud/meilifed/internal/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	env        string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "meilifed",
		Short: "Federated search gateway for Meilisearch",
		Long: `meilifed manages a catalog of Meilisearch indexes behind a common
prefix/suffix, provisions them on demand and serves index, group and
multi-index search over HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("meilifed version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.env, "env", config.GetEnv(), "Environment, selects config/{env}.yaml or .toml")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a config file (overrides --env)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newIndexesCmd(flags))
	cmd.AddCommand(newDumpIndexesCmd(flags))
	cmd.AddCommand(newGroupsCmd(flags))
	cmd.AddCommand(newSyncCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// load reads the configuration selected by the global flags.
func (f *globalFlags) load() (config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	return config.Load(f.env)
}

// setup loads the configuration and builds the logger.
func (f *globalFlags) setup() (config.Config, *zap.Logger, error) {
	cfg, err := f.load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.Logging.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	l, err := logpkg.NewLogger(f.env, level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, l, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
