package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage knowledge-graph entities",
	}

	cmd.AddCommand(
		entitiesListCmd(),
		entitiesCreateCmd(),
		entitiesFindCmd(),
		entitiesDeleteCmd(),
	)

	return cmd
}

func printEntities(entities []models.Entity) {
	for i := range entities {
		e := &entities[i]
		fmt.Printf("%-30s  %-16s  %3d obs  %s\n", truncate(e.Name, 30), e.Type, len(e.Observations), strings.Join(e.Labels, ", "))
	}
}

func entitiesListCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities list: %w", err)
			}
			defer func() { _ = svc.Close() }()

			g, err := svc.ReadGraph(ctx)
			if err != nil {
				return fmt.Errorf("entities list: %w", err)
			}

			if outputJSON {
				return printJSON(g.Entities)
			}
			if len(g.Entities) == 0 {
				fmt.Println("No entities found.")
				return nil
			}
			printEntities(g.Entities)
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func entitiesCreateCmd() *cobra.Command {
	var (
		entityType   string
		observations []string
		labels       []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an entity, merging into an existing one with the same name and type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.CreateEntities(ctx, []models.Entity{{
				Name:         args[0],
				Type:         entityType,
				Observations: observations,
				Labels:       labels,
			}})
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("entities create: %s: %s", res.Failed[0].Name, res.Failed[0].Error)
			}
			printEntities(res.Entities)
			return nil
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "", "entity type (required)")
	cmd.Flags().StringArrayVar(&observations, "obs", nil, "observation (repeatable)")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "additional label (repeatable, max 3)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func entitiesFindCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "find <name>...",
		Short: "Find entities by exact name, with the relations between them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities find: %w", err)
			}
			defer func() { _ = svc.Close() }()

			g, err := svc.FindNodes(ctx, args)
			if err != nil {
				return fmt.Errorf("entities find: %w", err)
			}

			if outputJSON {
				return printJSON(g)
			}
			if len(g.Entities) == 0 {
				fmt.Println("No entities found.")
				return nil
			}
			for i := range g.Entities {
				e := &g.Entities[i]
				fmt.Printf("Name:    %s\n", e.Name)
				fmt.Printf("Type:    %s\n", e.Type)
				if len(e.Labels) > 0 {
					fmt.Printf("Labels:  %s\n", strings.Join(e.Labels, ", "))
				}
				for _, o := range e.Observations {
					fmt.Printf("  - %s\n", o)
				}
				fmt.Println()
			}
			for _, r := range g.Relations {
				fmt.Printf("%s -[%s]-> %s\n", r.Source, r.RelationType, r.Target)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func entitiesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>...",
		Short: "Delete every entity with the given names, and their relations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities delete: %w", err)
			}
			defer func() { _ = svc.Close() }()

			n, err := svc.DeleteEntities(ctx, args)
			if err != nil {
				return fmt.Errorf("entities delete: %w", err)
			}
			fmt.Printf("Deleted %d entities.\n", n)
			return nil
		},
	}
}
