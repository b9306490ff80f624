package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vpnagg/internal/aggregator/fetcher"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/validator"

	"github.com/prometheus/client_golang/prometheus"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [url...]",
		Short: "Probe one or more source URLs and print their reliability score",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New(prometheus.NewRegistry())
			f := fetcher.New(fetcher.Options{}, m)
			v := validator.New(f.Probe)

			for _, url := range args {
				result := v.Validate(cmd.Context(), url)
				if !result.Accessible {
					fmt.Printf("%s\taccessible=false\terror=%s\n", url, result.Error)
					continue
				}
				fmt.Printf("%s\taccessible=true\tscore=%.2f\tconfigs=%d\tprotocols=%d\n",
					url, result.ReliabilityScore, result.EstimatedConfigs, len(result.ProtocolsFound))
			}
			return nil
		},
	}
	return cmd
}
