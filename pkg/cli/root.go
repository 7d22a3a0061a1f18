// Package cli provides the command-line interface for censor
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/logger"
)

// CLI wires the cobra commands to settings, logger and output writers
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	settings *config.Settings
	// settingsFile is the settings file actually read, empty when the
	// defaults and environment were used
	settingsFile string
	logger       logger.Logger
	console      *logger.ConsoleLogger
	output       io.Writer
	errorOut     io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	return NewCLIWithOutput(cfg, os.Stdout, os.Stderr)
}

// NewCLIWithOutput creates a CLI writing to the given writers
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := &CLI{
		config:   cfg,
		output:   output,
		errorOut: errorOut,
		console:  logger.NewConsoleLogger(output, errorOut),
	}
	c.setupCommands()
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "censor",
		Short: "Continuous integration build executor",
		Long: `censor checks out project revisions, runs the plugins of their pipeline
stage by stage and records every build with the problems it found.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	c.rootCmd.SetOut(c.output)
	c.rootCmd.SetErr(c.errorOut)

	flags := c.rootCmd.PersistentFlags()
	flags.StringVar(&c.config.ConfigFile, "config", c.config.ConfigFile, "settings file (default: ./censor.yaml or ~/.censor/censor.yaml)")
	flags.StringVar(&c.config.EnvFile, "env-file", c.config.EnvFile, "dotenv file with CENSOR_* overrides")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "", "log level (debug, info, warn, error)")

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("censor v{{.Version}}\n")

	c.rootCmd.AddCommand(
		c.newRunCmd(),
		c.newWorkerCmd(),
		c.newShowCmd(),
		c.newValidateCmd(),
		c.newInitCmd(),
		c.newProjectsCmd(),
		c.newVersionCmd(),
	)
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	if c.config.EnvFile != "" {
		if err := config.LoadDotEnv(c.config.EnvFile); err != nil {
			return err
		}
	}

	v, err := config.NewViper(c.config.ConfigFile)
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(v)
	if err != nil {
		return err
	}
	if c.config.Verbosity != "" {
		settings.Log.Level = c.config.Verbosity
	}

	c.settings = settings
	c.settingsFile = v.ConfigFileUsed()
	if c.errorOut == os.Stderr {
		c.logger = logger.CreateLogger(settings.Log.File, settings.Log.Level)
	} else {
		c.logger = logger.CreateLoggerWithOutput(settings.Log.File, settings.Log.Level, c.errorOut)
	}
	if c.settingsFile != "" {
		c.logger.Debug("Using settings file", logger.WithField("file", c.settingsFile))
	}
	return nil
}

// Run is the entry point used by main
func Run(version string, args []string) error {
	cfg := NewConfig()
	if version != "" {
		cfg.Version = version
	}
	c := NewCLI(cfg)
	if err := c.Execute(args); err != nil {
		c.console.Error(err.Error())
		return err
	}
	return nil
}

func (c *CLI) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format, args...)
}
