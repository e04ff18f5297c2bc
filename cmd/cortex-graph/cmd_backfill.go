package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func backfillCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Generate embeddings for every entity that is missing them",
		Long: `Finds entities without embeddings, including nodes written before vector
indexing existed, generates all three embeddings for them and adopts them into
the indexed set. Entities that fail stay unindexed and are retried next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			defer func() { _ = svc.Close() }()

			report, err := svc.EnsureAllIndexed(ctx)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			if outputJSON {
				return printJSON(report)
			}
			fmt.Printf("Indexed %d entities in %s.\n", report.Indexed, report.Finished.Sub(report.Started).Round(time.Millisecond))
			for _, f := range report.Failed {
				fmt.Printf("  failed: %s [%s]: %s\n", f.Name, f.Type, f.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
