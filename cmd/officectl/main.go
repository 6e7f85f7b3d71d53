// Package main provides the officectl command line client.
package main

import (
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
)

func main() {
	logger := log.NewLogger()
	if err := newRootCmd(logger, env.NewRepository()).Execute(); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func newRootCmd(logger log.Logger, envRepo env.Repository) *cobra.Command {
	a := &app{logger: logger, envRepo: envRepo}

	rootCmd := &cobra.Command{
		Use:           "officectl",
		Short:         "Work with OneDrive files, Excel workbooks, Outlook mail and Teams chats",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.EnableDebugLog(a.verbose)
			return a.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file path (default: ~/.config/go-officeclient/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newUploadCmd(a),
		newDownloadCmd(a),
		newReadRangeCmd(a),
		newWriteRangeCmd(a),
		newSendMailCmd(a),
		newSendMessageCmd(a),
	)
	return rootCmd
}
