package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "pluggysync",
	Short: "Sync a Pluggy item into the transactions table and a downstream endpoint",
	Long: `pluggysync runs one sync of a Pluggy item:

1. Exchanges CLIENT_ID/CLIENT_SECRET for an API key
2. Fetches the item's accounts and each account's transactions
3. Inserts every transaction into the transactions table
4. POSTs the aggregated accounts document to TARGET_ENDPOINT

Example:
  pluggysync run
  pluggysync run --env-file prod.env --item-id 8a7b... --workers 4`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// Execute runs the root command. A non-nil error means the sync aborted.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default is .env when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
