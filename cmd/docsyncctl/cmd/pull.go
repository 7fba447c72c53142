package cmd

import (
	"context"
	"fmt"

	"docsync/internal/features/source"

	"github.com/spf13/cobra"
)

var (
	pullFrom  string
	pullModel string
	pullLimit int
)

var pullCmd = &cobra.Command{
	Use:   "pull <entity-type>",
	Short: "Import entities from Odoo or from the remote table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pullLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		return withServices(cmd.Context(), func(ctx context.Context, s *services) error {
			var (
				res *source.PullResult
				err error
			)
			switch pullFrom {
			case source.FromOdoo:
				res, err = s.Sources.PullOdoo(ctx, args[0], pullModel)
			case source.FromRemote:
				res, err = s.Sources.PullRemote(ctx, args[0], pullLimit)
			default:
				return fmt.Errorf("--from must be %q or %q", source.FromOdoo, source.FromRemote)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s from %s: read=%d created=%d changed=%d skipped=%d\n",
				res.EntityType, res.Source, res.Read, res.Created, res.Changed, res.Skipped)
			return nil
		})
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullFrom, "from", source.FromOdoo, "odoo or remote")
	pullCmd.Flags().StringVar(&pullModel, "model", "", "Odoo model, defaults to the definition's odoo_model setting")
	pullCmd.Flags().IntVar(&pullLimit, "limit", 0, "maximum rows to read from the remote table, 0 for all")
	rootCmd.AddCommand(pullCmd)
}
