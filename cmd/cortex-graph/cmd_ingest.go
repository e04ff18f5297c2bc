package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var (
		filePath string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Extract entities and relations from free text with Claude and store them",
		Long: `Reads text from the argument, --file, or stdin, asks Claude to extract
entities, observations and relations, and merges the result into the graph.

Requires ANTHROPIC_API_KEY (or claude.api_key).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			ex := newExtractor(logger)
			if ex == nil {
				return errors.New("ingest: ANTHROPIC_API_KEY is not set")
			}

			var text string
			switch {
			case len(args) == 1:
				text = args[0]
			case filePath != "" && filePath != "-":
				b, err := os.ReadFile(filePath)
				if err != nil {
					return fmt.Errorf("ingest: reading file: %w", err)
				}
				text = string(b)
			default:
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("ingest: reading stdin: %w", err)
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("ingest: no input text")
			}

			g, err := ex.Extract(ctx, text)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if dryRun {
				return encodeGraph(os.Stdout, g, formatJSON)
			}

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.Import(ctx, g)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Printf("Stored %d entities, %d relations (%d skipped).\n",
				len(res.Entities.Entities), len(res.Relations.Relations), len(res.Relations.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "read text from a file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the extracted graph without storing it")
	return cmd
}
