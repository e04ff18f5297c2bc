package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-graph/internal/models"
	"github.com/ajitpratap0/cortex-graph/internal/search"
)

func searchCmd() *cobra.Command {
	var (
		mode       string
		limit      int
		threshold  float64
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge graph",
		Long: `Search the knowledge graph.

Without --mode the query is routed automatically: short name-like queries try an
exact name match, other queries use semantic search over entity content, and
keyword search is used when semantic search finds nothing.

With --mode (content, observations, identity) a single embedding space is searched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = svc.Close() }()

			var res *models.SearchResult
			if mode == "" {
				res = svc.SearchNodes(ctx, args[0], limit)
			} else {
				q := search.VectorQuery{Query: args[0], Mode: mode, Limit: limit}
				if cmd.Flags().Changed("threshold") {
					q.Threshold = &threshold
				}
				res, err = svc.VectorSearch(ctx, q)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
			}

			if outputJSON {
				return printJSON(res)
			}
			printSearchResult(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "embedding space: content|observations|identity (default: routed search)")
	cmd.Flags().IntVar(&limit, "limit", 10, "max results")
	cmd.Flags().Float64Var(&threshold, "threshold", search.DefaultThreshold, "minimum similarity score (vector modes only)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func printSearchResult(res *models.SearchResult) {
	if len(res.Entities) == 0 {
		fmt.Println("No results found.")
		return
	}
	fmt.Printf("Strategy: %s\n\n", res.Strategy)
	for i := range res.Entities {
		e := &res.Entities[i]
		fmt.Printf("[%d] (%.4f) %s [%s]\n", i+1, e.Score, e.Name, e.Type)
		for _, o := range e.Observations {
			fmt.Printf("    - %s\n", truncate(o, 120))
		}
	}
	if len(res.Relations) > 0 {
		fmt.Println("\nRelations:")
		for _, r := range res.Relations {
			fmt.Printf("  %s -[%s]-> %s\n", r.Source, r.RelationType, r.Target)
		}
	}
	if len(res.Related) > 0 {
		names := make([]string, 0, len(res.Related))
		for _, e := range res.Related {
			names = append(names, e.Name)
		}
		fmt.Printf("\nRelated: %s\n", strings.Join(names, ", "))
	}
}
