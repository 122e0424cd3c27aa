package migration

import (
	"github.com/openconreg/conreg/internal/config"
	"github.com/openconreg/conreg/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType != "postgres" {
			// The embedded migrations target postgres. Other stores are
			// expected to be provisioned out of band.
			log.Warn("skipping embedded migrations", zap.String("database_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if err := seed.EnsureCounter(conn); err != nil {
			return err
		}
		return seed.EnsureMemberships(conn)
	}),
)
