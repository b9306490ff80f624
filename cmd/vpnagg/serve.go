package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"vpnagg/internal/aggregator/httpapi"
)

// runDiscoveryLoop periodically checks whether DiscoveryManager's interval
// has elapsed and, if so, runs a pass and registers anything new as a
// custom source — the background equivalent of original_source's periodic
// discovery task, since spec §6's REST surface deliberately has no
// /discover route.
func runDiscoveryLoop(ctx context.Context, p *pipeline) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.discovery.ShouldDiscover() {
				continue
			}
			found := p.discovery.Discover(ctx)
			if len(found) == 0 {
				continue
			}
			n := p.sources.AddCustomSources(found)
			p.logger.Info().Int("discovered", len(found)).Int("added", n).Msg("discovery pass complete")
		}
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background job manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(sourcesFile, logLevel)
			if err != nil {
				return err
			}
			p.jobs.Start()
			defer p.jobs.Stop()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			go runDiscoveryLoop(ctx, p)

			srv := httpapi.New(p.validator, p.jobs, p.bus, p.store, p.metrics, p.logger, httpapi.Options{
				APIToken:        p.cfg.APIToken,
				TenantTokensRaw: p.cfg.TenantTokensRaw,
				OutputDir:       p.cfg.OutputDir,
			})

			if metricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
					p.logger.Info().Str("addr", metricsAddr).Msg("metrics listening")
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						p.logger.Error().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, expose Prometheus /metrics on this address")
	return cmd
}
