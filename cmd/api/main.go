// Command servicepoller runs the endpoint registry API and the background
// health poller.
//
// Usage:
//
//	servicepoller serve [-c servicepoller.yaml]
//	servicepoller version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "servicepoller",
	Short: "Track service endpoints and poll their health",
	Long: `servicepoller keeps a list of service endpoints, polls each one with an
HTTP GET on a fixed period and records OK when the body is exactly "OK",
FAIL otherwise.

Configuration comes from an optional YAML file and the environment
(API_ADDR, DATABASE_URL, BADGER_PATH, POLL_INTERVAL, PROBE_TIMEOUT, ...).`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "servicepoller %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
