package main

import (
	"github.com/spf13/cobra"

	"clipstitch/internal/pipeline"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithTools(pipeline.Tools{})
}

// newRootCommandWithTools builds the command tree with tool overrides that
// the run command hands to pipeline.Assemble.
func newRootCommandWithTools(tools pipeline.Tools) *cobra.Command {
	var configFlag string
	var envFlag string

	ctx := newCommandContext(&configFlag, &envFlag)
	ctx.tools = tools

	rootCmd := &cobra.Command{
		Use:           "clipstitch",
		Short:         "Cut time ranges from online videos and stitch them into one file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.loadEnv(); err != nil {
				return err
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", "", "Environment file loaded before configuration (default .env)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
