package provider

import (
	"smallbiznis-rewards/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("provider",
	fx.Provide(
		NewRegistry,
		NewFetcher,
	),
)

var Server = fx.Module("provider.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
