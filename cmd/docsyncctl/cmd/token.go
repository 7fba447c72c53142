package cmd

import (
	"fmt"
	"time"

	"docsync/internal/config"
	"docsync/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user>",
	Short: "Issue an API token signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, r := range tokenRoles {
			switch r {
			case utils.RoleAdmin, utils.RoleOperator, utils.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", r)
			}
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		utils.SetSecret(cfg.JWTSecret)

		token, err := utils.GenerateToken(args[0], tokenRoles, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{utils.RoleOperator}, "roles to grant (admin, operator, viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
