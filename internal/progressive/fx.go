package progressive

import (
	"github.com/smallbiznis/meterflow/internal/progressive/service"
	"go.uber.org/fx"
)

var Module = fx.Module("progressive.service",
	fx.Provide(service.NewService),
)
