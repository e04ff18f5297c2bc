package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to Neo4j and the embedding provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			start := time.Now()
			svc, err := newService(ctx, logger)
			if err != nil {
				fmt.Printf("neo4j:     FAIL (%v)\n", err)
				return fmt.Errorf("health: %w", err)
			}
			defer func() { _ = svc.Close() }()

			h := svc.Health(ctx)
			fmt.Printf("neo4j:     %s\n", h.Store)
			fmt.Printf("embedder:  %s (dimension %d)\n", h.Embedder, h.Dimension)
			fmt.Printf("checked in %s\n", time.Since(start).Round(time.Millisecond))
			if !h.OK() {
				return fmt.Errorf("health: one or more checks failed")
			}
			return nil
		},
	}
}
