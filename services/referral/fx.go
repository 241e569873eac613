package referral

import (
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(NewService),
)

var Server = fx.Module("referral.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

var Worker = fx.Module("referral.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ReferralRepair, svc.HandleRepairTask)
}
