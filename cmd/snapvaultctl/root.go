package main

import (
	"fmt"
	"sync"

	"github.com/raaihank/snapvault/internal/app"
	"github.com/raaihank/snapvault/internal/config"
	"github.com/raaihank/snapvault/internal/logger"
	"github.com/spf13/cobra"
)

// commandContext loads configuration and the logger once per invocation
type commandContext struct {
	configPath *string
	verbose    *bool

	once sync.Once
	cfg  *config.Config
	log  *logger.Logger
	err  error
}

func newCommandContext(configPath *string, verbose *bool) *commandContext {
	return &commandContext{configPath: configPath, verbose: verbose}
}

func (c *commandContext) ensure() (*config.Config, *logger.Logger, error) {
	c.once.Do(func() {
		cfg, err := config.Load(*c.configPath)
		if err != nil {
			c.err = fmt.Errorf("load configuration: %w", err)
			return
		}
		cfg.Logging.Format = "console"
		cfg.Logging.File.Enabled = false
		if *c.verbose {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "warn"
		}
		log, err := app.NewLogger(cfg)
		if err != nil {
			c.err = fmt.Errorf("init logger: %w", err)
			return
		}
		c.cfg = cfg
		c.log = log
	})
	return c.cfg, c.log, c.err
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var verboseFlag bool

	ctx := newCommandContext(&configFlag, &verboseFlag)

	rootCmd := &cobra.Command{
		Use:           "snapvaultctl",
		Short:         "Redact screen recordings from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log pipeline details")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))

	return rootCmd
}
