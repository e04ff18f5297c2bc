package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// Graph file formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// detectFormat resolves the format flag, falling back to the file extension.
func detectFormat(format, path string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			f = formatYAML
		default:
			f = formatJSON
		}
	}
	switch f {
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
}

func encodeGraph(w io.Writer, g *models.KnowledgeGraph, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	}
}

func decodeGraph(r io.Reader, format string) (*models.KnowledgeGraph, error) {
	var g models.KnowledgeGraph
	switch format {
	case formatYAML:
		if err := yaml.NewDecoder(r).Decode(&g); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decoding YAML: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&g); err != nil {
			return nil, fmt.Errorf("decoding JSON: %w", err)
		}
	}
	return &g, nil
}

func exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole knowledge graph to JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			f, err := detectFormat(format, output)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			defer func() { _ = svc.Close() }()

			g, err := svc.ReadGraph(ctx)
			if err != nil {
				return fmt.Errorf("export: reading graph: %w", err)
			}

			var w *os.File
			if output == "" || output == "-" {
				w = os.Stdout
			} else {
				w, err = os.Create(output)
				if err != nil {
					return fmt.Errorf("export: creating output file: %w", err)
				}
				defer func() { _ = w.Close() }()
			}

			if err := encodeGraph(w, g, f); err != nil {
				return fmt.Errorf("export: %w", err)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(os.Stderr, "Exported %d entities and %d relations to %s\n", len(g.Entities), len(g.Relations), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format: json or yaml (default: from file extension, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	return cmd
}
