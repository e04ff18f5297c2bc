package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		filePath string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a knowledge graph from a JSON or YAML file",
		Long: `Import entities and relations from a file in the export format.

Entities are merged by name and type, so importing the same file twice is
harmless. Relations whose endpoints do not exist are skipped.

Use - as the file path to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			f, err := detectFormat(format, filePath)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			var r io.Reader
			if filePath == "" || filePath == "-" {
				r = os.Stdin
			} else {
				file, openErr := os.Open(filePath)
				if openErr != nil {
					return fmt.Errorf("import: opening file: %w", openErr)
				}
				defer func() { _ = file.Close() }()
				r = file
			}

			g, err := decodeGraph(r, f)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.Import(ctx, g)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Printf("Imported %d entities (%d failed), %d relations (%d skipped).\n",
				len(res.Entities.Entities), len(res.Entities.Failed),
				len(res.Relations.Relations), len(res.Relations.Skipped))
			for _, fl := range res.Entities.Failed {
				fmt.Printf("  failed: %s [%s]: %s\n", fl.Name, fl.Type, fl.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "-", "input file path (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml (default: from file extension, else json)")
	return cmd
}
