package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/rehearse/internal/client"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "rehearsed.pid"

var flagAddr string

var rootCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Rehearse - mock interview practice in the terminal",
	Long: `Rehearse runs mock job interviews against the rehearsed daemon.

Examples:
  rehearse init                                   # First-time setup
  rehearse start                                  # Start the daemon
  rehearse practice --role sales --persona chatty
  rehearse feedback <session-id>                  # Print a session summary
  rehearse status                                 # Daemon status and sessions`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rehearse %s\n", Version)
	},
}

func init() {
	defaultAddr := os.Getenv("REHEARSE_ADDR")
	if defaultAddr == "" {
		defaultAddr = client.DefaultBaseURL
	}
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", defaultAddr, "daemon base URL")

	rootCmd.AddCommand(
		initCmd, startCmd, stopCmd, statusCmd, logsCmd,
		practiceCmd, feedbackCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(flagAddr)
}
