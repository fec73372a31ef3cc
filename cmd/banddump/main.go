// Banddump downloads the raw activity flash of BLE fitness trackers.
//
// It reaches the tracker through a BLE bridge, either a WebSocket bridge
// found over mDNS or a BLE UART dongle on a serial port, pairs with it,
// reads every data block and writes the image to disk with a manifest.
//
// Usage:
//
//	banddump [command] [flags]
//
// See 'banddump --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/banddump/internal/config"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "banddump",
	Short: "Fitness tracker flash downloader",
	Long: `Download the raw activity flash of BLE fitness trackers.

banddump talks to the tracker through a BLE bridge: a WebSocket bridge on
the local network (found over mDNS) or a BLE UART dongle on a serial port.
It pairs with the tracker, reads every data block, checks each block CRC and
writes the image to disk together with a YAML manifest.

Logging is silent unless --log-level or BANDDUMP_LOG_LEVEL is set.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv(config.PathEnv, configPath); err != nil {
				return err
			}
		}
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $"+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path; defaults to $"+config.PathEnv+" or the user config dir")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "banddump %s\n%s\n", version.Full(), version.Platform())
	},
}
