// Package cmd implements the websniffer CLI using cobra.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/srun-soft/websniffer/configs"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "websniffer",
	Short: "websniffer - report the websites a machine visits",
	Long: `websniffer captures TCP traffic on a network interface, extracts the
website name from TLS Client Hello (SNI) and plain HTTP Host headers, and
reports each detection to the backend as JSON.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", configs.DefaultEnvFile,
		"dotenv file with backend settings, ignored when missing")

	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(devicesCmd)
}
