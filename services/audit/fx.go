package audit

import (
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(NewService),
)

var Server = fx.Module("audit.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

var Worker = fx.Module("audit.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.LedgerAudit, svc.HandleAuditTask)
}
