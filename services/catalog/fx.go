package catalog

import (
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(NewService),
)

var Server = fx.Module("catalog.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

var Worker = fx.Module("catalog.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.CatalogRefresh, svc.HandleRefreshTask)
}
