package main

import (
	"fmt"
	"os"

	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/seed"
	"github.com/lojinha/storefront/internal/services"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [catalog.yaml]",
		Short: "Load categories and products from a YAML file",
		Long: `Load categories and products from a YAML file.

Entries whose slug already exists are skipped, so the same file can be
applied more than once.

Example:
  storefront seed catalog.example.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer f.Close()

			catalog, err := seed.Load(f)
			if err != nil {
				return err
			}

			database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			m := metrics.NewNoop()
			res, err := seed.Apply(cmd.Context(),
				services.NewCategoryService(database, m),
				services.NewProductService(database, m, cfg.InstallmentsMax, cfg.InstallmentsMinPerCents),
				catalog)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "categories created: %d, products created: %d, skipped: %d\n",
				res.CategoriesCreated, res.ProductsCreated, res.Skipped)
			return nil
		},
	}
}
