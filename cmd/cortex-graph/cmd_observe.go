package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

func observeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Add or remove observations on entities",
	}
	cmd.AddCommand(observeAddCmd(), observeDeleteCmd())
	return cmd
}

func observeAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <entity-name> <observation>...",
		Short: "Append observations to every entity with the given name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("observe add: %w", err)
			}
			defer func() { _ = svc.Close() }()

			results, err := svc.AddObservations(ctx, []models.ObservationAddition{{EntityName: args[0], Contents: args[1:]}})
			if err != nil {
				return fmt.Errorf("observe add: %w", err)
			}
			if len(results) == 0 {
				fmt.Printf("No entity named %q.\n", args[0])
				return nil
			}
			for _, r := range results {
				fmt.Printf("%s [%s]: %d added\n", r.EntityName, r.EntityType, len(r.AddedObservations))
			}
			return nil
		},
	}
}

func observeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity-name> <observation>...",
		Short: "Remove observations from every entity with the given name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			svc, err := newService(ctx, logger)
			if err != nil {
				return fmt.Errorf("observe delete: %w", err)
			}
			defer func() { _ = svc.Close() }()

			n, err := svc.DeleteObservations(ctx, []models.ObservationDeletion{{EntityName: args[0], Observations: args[1:]}})
			if err != nil {
				return fmt.Errorf("observe delete: %w", err)
			}
			fmt.Printf("Updated %d entities.\n", n)
			return nil
		},
	}
}
