package eventstore

import (
	"context"

	"github.com/smallbiznis/meterflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParam struct {
	fx.In

	Cfg    config.Config
	DB     *gorm.DB
	Column *ColumnStore
}

// NewStore selects the backend from configuration. Both backends satisfy the
// same contract, so callers never branch on the choice.
func NewStore(p StoreParam) Store {
	if p.Cfg.EventStoreBackend == config.BackendColumn {
		return p.Column
	}
	return NewRowStore(p.DB)
}

type hydrateParam struct {
	fx.In

	LC     fx.Lifecycle
	Cfg    config.Config
	DB     *gorm.DB
	Column *ColumnStore
	Log    *zap.Logger
}

func registerHydration(p hydrateParam) {
	if p.Cfg.EventStoreBackend != config.BackendColumn {
		return
	}
	log := p.Log.Named("eventstore.column")
	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Column.Hydrate(ctx, p.DB); err != nil {
				return err
			}
			log.Info("column store hydrated")
			return nil
		},
	})
}

var Module = fx.Module("eventstore",
	fx.Provide(NewColumnStore),
	fx.Provide(NewStore),
	fx.Invoke(registerHydration),
)
