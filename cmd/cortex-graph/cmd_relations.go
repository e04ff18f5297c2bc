package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func relationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations",
		Short: "Manage relations between entities",
	}
	cmd.AddCommand(relationsCreateCmd(), relationsDeleteCmd())
	return cmd
}

func relationsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <source> <relation-type> <target>",
		Short: "Create a relation between two existing entities",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("relations create: %w", err)
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.CreateRelations(ctx, []models.Relation{{Source: args[0], RelationType: args[1], Target: args[2]}})
			if err != nil {
				return fmt.Errorf("relations create: %w", err)
			}
			for _, r := range res.Relations {
				fmt.Printf("%s -[%s]-> %s\n", r.Source, r.RelationType, r.Target)
			}
			for _, r := range res.Skipped {
				fmt.Printf("skipped %s -[%s]-> %s: endpoint not found\n", r.Source, r.RelationType, r.Target)
			}
			return nil
		},
	}
}

func relationsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <source> <relation-type> <target>",
		Short: "Delete a relation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("relations delete: %w", err)
			}
			defer func() { _ = svc.Close() }()

			n, err := svc.DeleteRelations(ctx, []models.Relation{{Source: args[0], RelationType: args[1], Target: args[2]}})
			if err != nil {
				return fmt.Errorf("relations delete: %w", err)
			}
			fmt.Printf("Deleted %d relations.\n", n)
			return nil
		},
	}
}
