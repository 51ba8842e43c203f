package migration

import (
	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are dev-only targets; let gorm derive the
			// schema instead of maintaining parallel SQL
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.EnsureCruiseLines(conn, node, cfg.SeedCruiseLines)
	}),
)

// AutoMigrate creates the schema from the model structs.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&catalogdomain.CruiseLine{},
		&catalogdomain.Ship{},
		&catalogdomain.Port{},
		&catalogdomain.Region{},
		&catalogdomain.Cruise{},
		&catalogdomain.PriceLine{},
		&catalogdomain.CheapestPrice{},
		&catalogdomain.PriceHistory{},
	)
}
