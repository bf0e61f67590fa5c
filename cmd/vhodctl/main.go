// Command vhodctl runs operational tasks against the vhod database
// without starting the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vhodhq/vhod/internal/config"
	"github.com/vhodhq/vhod/internal/migration"
	"github.com/vhodhq/vhod/internal/seed"
	"github.com/vhodhq/vhod/pkg/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vhodctl",
		Short: "vhod database and bootstrap tooling",
	}

	rootCmd.AddCommand(
		migrateCmd(),
		seedCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			conn, err := open(cfg)
			if err != nil {
				return err
			}
			if err := migration.Apply(conn, cfg); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo building, units and categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			conn, err := open(cfg)
			if err != nil {
				return err
			}
			if err := migration.Apply(conn, cfg); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			if err := seed.EnsureDemoBuilding(conn); err != nil {
				return fmt.Errorf("seed demo building: %w", err)
			}
			fmt.Println("demo building seeded")
			return nil
		},
	}
}

func open(cfg config.Config) (*gorm.DB, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return db.Open(cfg, log)
}
