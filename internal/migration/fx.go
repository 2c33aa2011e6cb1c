package migration

import (
	chargedomain "github.com/smallbiznis/meterflow/internal/charge/domain"
	"github.com/smallbiznis/meterflow/internal/config"
	meterdomain "github.com/smallbiznis/meterflow/internal/meter/domain"
	progressivedomain "github.com/smallbiznis/meterflow/internal/progressive/domain"
	subdomain "github.com/smallbiznis/meterflow/internal/subscription/domain"
	thresholddomain "github.com/smallbiznis/meterflow/internal/threshold/domain"
	usagedomain "github.com/smallbiznis/meterflow/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// mysql and sqlite derive the schema from the models.
		return conn.AutoMigrate(
			&meterdomain.Meter{},
			&usagedomain.UsageEvent{},
			&subdomain.Plan{},
			&subdomain.Subscription{},
			&chargedomain.Charge{},
			&thresholddomain.UsageThreshold{},
			&thresholddomain.AppliedUsageThreshold{},
			&progressivedomain.ProgressiveInvoice{},
		)
	}),
)
