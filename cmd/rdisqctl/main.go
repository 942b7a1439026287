// Command rdisqctl is the operator CLI for the dispatch fabric: it inspects
// live receivers, lists queues, sends ad hoc requests, runs migrations, and
// boots the worked examples/ggisimport example receiver. Each subcommand
// registers itself into rootCmd from its own init().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rdisqctl",
	Short: "rdisqctl - operate and inspect a rdisq dispatch fabric",
	Long: `rdisqctl is the operator companion for a rdisq deployment: it reads the
same Redis broker a fleet of receivers publishes their status into, so it can
answer "who's listening", "what queues exist", and "let me send one request
and see the reply" without writing a throwaway Go program each time.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (defaults to $CONFIG_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
