package cmd

import (
	"context"
	"fmt"
	"io"

	"docsync/internal/features/reconcile"

	"github.com/spf13/cobra"
)

var force bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <entity-type>",
	Short: "Push changed entities of a type to its remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			run, err := s.Reconcile.Reconcile(ctx, args[0], force)
			if run != nil {
				printRun(cmd.OutOrStdout(), *run)
			}
			return err
		})
	},
}

var reconcileAllCmd = &cobra.Command{
	Use:   "reconcile-all",
	Short: "Reconcile every entity type that has a definition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			runs, err := s.Reconcile.ReconcileAll(ctx, force)
			for _, run := range runs {
				printRun(cmd.OutOrStdout(), run)
			}
			return err
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <entity-type>",
	Short: "Check which entities of a type are present on the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			run, err := s.Reconcile.Verify(ctx, args[0])
			if run != nil {
				printRun(cmd.OutOrStdout(), *run)
			}
			return err
		})
	},
}

func init() {
	reconcileCmd.Flags().BoolVarP(&force, "force", "f", false, "resubmit entities that did not change")
	reconcileAllCmd.Flags().BoolVarP(&force, "force", "f", false, "resubmit entities that did not change")
	rootCmd.AddCommand(reconcileCmd, reconcileAllCmd, verifyCmd)
}

func printRun(w io.Writer, run reconcile.RunLog) {
	c := run.Counts
	fmt.Fprintf(w, "%-20s %-9s %-8s entities=%d submitted=%d deleted=%d skipped=%d errors=%d",
		run.EntityType, run.Kind, run.Status, c.Entities, c.Submitted, c.Deleted, c.Skipped, c.Errors)
	if run.Kind == reconcile.RunVerify {
		fmt.Fprintf(w, " indexed=%d not_found=%d", c.Indexed, c.NotFound)
	}
	if run.Error != "" {
		fmt.Fprintf(w, " error=%q", run.Error)
	}
	fmt.Fprintln(w)
}
