package main

import (
	"github.com/spf13/cobra"

	"github.com/warp/oee-tracker/config"
	"github.com/warp/oee-tracker/logger"
)

var (
	// Version and Commit are set at build time via ldflags.
	Version = "dev"
	Commit  = "none"

	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "oee-server",
	Short:         "Shift-wise production tracking and OEE for a manufacturing line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := cfg.Logger.Level
		if verbose {
			level = "debug"
		}
		logger.Init(logger.Options{
			Level:   level,
			Format:  cfg.Logger.Format,
			Service: "oee-tracker",
			File:    cfg.Logger.File,
		})
		logger.Get().Debug().Str("version", Version).Str("commit", Commit).Msg("configuration loaded")
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, shiftCmd, recomputeCmd)
}
