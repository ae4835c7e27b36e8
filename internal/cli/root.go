// Package cli implements the cairn command line.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"cairn/internal/config"
	"cairn/internal/tracing"
	"cairn/pkg/logger"
)

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

type contextKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var flags GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "cairn",
		Short: "cairn - agent engine with durable interrupts",
		Long: `cairn runs tool-using model agents whose threads are checkpointed.
A tool call that needs approval or external input pauses the thread,
which can be resumed later from the command line or the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			config.Reset()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// config subcommands must work on a broken file to repair it
			if cmd.Parent() == nil || cmd.Parent().Name() != "config" {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logLevel := cfg.Log.Level
			if flags.Verbose {
				logLevel = "debug"
			}
			if flags.Quiet {
				logLevel = "error"
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			}); err != nil {
				return err
			}

			shutdown, err := tracing.Init(cmd.Context(), cfg.Tracing)
			if err != nil {
				return err
			}

			cliCtx := NewCLIContext(cfg, configPath, shutdown)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewResumeCmd())
	rootCmd.AddCommand(NewThreadsCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs root and releases the engine of the executed command, also
// when it failed.
func Execute(root *cobra.Command) error {
	cmd, err := root.ExecuteC()
	if cmd != nil {
		if cliCtx := GetCLIContext(cmd); cliCtx != nil {
			err = errors.Join(err, cliCtx.Close())
		}
	}
	return err
}

// GetCLIContext returns the context installed by the root command.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, _ := ctx.Value(contextKey{}).(*CLIContext)
	return cliCtx
}
