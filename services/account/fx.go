package account

import (
	"smallbiznis-rewards/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
)

var Server = fx.Module("account.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
