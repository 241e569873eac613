package webhook

import (
	"smallbiznis-rewards/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(NewPipeline),
)

var Server = fx.Module("webhook.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
