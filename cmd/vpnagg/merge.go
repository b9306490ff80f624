package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vpnagg/internal/aggregator/merger"
)

func newMergeCmd() *cobra.Command {
	var limit int
	var formats []string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Run a single merge pass and write the requested output artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(sourcesFile, logLevel)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			start := time.Now()
			cancelled := func() bool { return false }
			report := func(progress float64, total, valid int) {
				p.logger.Info().Float64("progress", progress).Int("total_configs", total).Int("valid_configs", valid).Msg("merge progress")
			}

			var result *merger.Result
			if limit > 0 {
				result = p.merger.RunQuickMerge(ctx, limit, cancelled, report)
			} else {
				result = p.merger.RunComprehensiveMerge(ctx, cancelled, report)
			}

			if outputDir == "" {
				outputDir = p.cfg.OutputDir
			}
			if len(formats) > 0 {
				if err := p.merger.WriteArtifacts(outputDir, formats, result, time.Since(start)); err != nil {
					return fmt.Errorf("write artifacts: %w", err)
				}
			}

			fmt.Printf("sources: %d ok, %d failed, %d total — %d configurations accepted\n",
				result.SourcesOK, result.SourcesFailed, result.SourcesTotal, len(result.Configurations))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of sources processed (0 = comprehensive run)")
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "output formats to write (raw,base64,csv,singbox,clash,report)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "override OUTPUT_DIR for this run")
	return cmd
}
