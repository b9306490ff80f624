// Command vpnagg runs the VPN subscription aggregator: crawling tiered
// sources, validating and merging their configurations, and serving the
// result over a REST/SSE/WS boundary. Built with cobra+viper; the sources
// file and log level are persistent flags, other settings come from the
// environment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	sourcesFile string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:   "vpnagg",
		Short: "VPN subscription aggregator",
	}
	root.PersistentFlags().StringVar(&sourcesFile, "sources", "sources.yaml", "path to the tiered sources YAML")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "zerolog level (debug, info, warn, error)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newValidateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
