package notification

import (
	"smallbiznis-rewards/pkg/httpapi"

	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		NewService,
		func(s *Service) Notifier { return s },
	),
)

var Server = fx.Module("notification.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)
