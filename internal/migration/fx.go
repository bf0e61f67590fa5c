package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	billingdomain "github.com/vhodhq/vhod/internal/billing/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/config"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	intercomdomain "github.com/vhodhq/vhod/internal/intercom/domain"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if err := Apply(conn, cfg); err != nil {
			return err
		}
		if cfg.SeedDemoBuilding {
			return seed.EnsureDemoBuilding(conn)
		}
		return nil
	}),
)

// Apply brings the schema up to date. Postgres runs the versioned SQL
// migrations; local sqlite and mysql setups derive the schema from the
// models instead.
func Apply(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}

	return conn.AutoMigrate(
		&buildingdomain.Building{},
		&buildingdomain.Unit{},
		&directorydomain.User{},
		&directorydomain.Membership{},
		&expensedomain.ExpenseCategory{},
		&expensedomain.Expense{},
		&allocationdomain.ExpenseAllocation{},
		&meteringdomain.Meter{},
		&meteringdomain.MeterReading{},
		&billingdomain.Invoice{},
		&billingdomain.Payment{},
		&billingdomain.UnitCredit{},
		&intercomdomain.Endpoint{},
	)
}
