package ledger

import (
	"smallbiznis-rewards/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var Server = fx.Module("ledger.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
