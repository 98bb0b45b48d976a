package main

import (
	"fmt"
	"time"

	"github.com/lojinha/storefront/internal/middleware"
	"github.com/spf13/cobra"
)

func adminTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Print a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			token, err := middleware.IssueAdminToken(cfg.AdminJWTSecret, subject, ttl, time.Now())
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "who the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "how long the token is valid")

	return cmd
}
