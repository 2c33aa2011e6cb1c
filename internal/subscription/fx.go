package subscription

import (
	"github.com/smallbiznis/meterflow/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.reader",
	fx.Provide(service.NewReader),
)
