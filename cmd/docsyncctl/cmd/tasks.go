package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var minAge time.Duration

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Ask the remotes for the status of every open task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			n, err := s.Tracker.Poll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) settled\n", n)
			return nil
		})
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete finished tasks no entity refers to anymore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			age := minAge
			if !cmd.Flags().Changed("min-age") {
				age = s.Config.TaskGCMinAge
			}
			n, err := s.Tracker.Collect(ctx, age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d task(s) removed\n", n)
			return nil
		})
	},
}

func init() {
	gcCmd.Flags().DurationVar(&minAge, "min-age", 24*time.Hour, "only remove tasks finished at least this long ago")
	rootCmd.AddCommand(pollCmd, gcCmd)
}
