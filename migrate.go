package main

import (
	"fmt"

	"github.com/lojinha/storefront/internal/db"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			return database.Migrate(cmd.Context())
		},
	}
}
