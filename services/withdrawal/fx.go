package withdrawal

import (
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
)

var Server = fx.Module("withdrawal.server",
	fx.Provide(httpapi.AsRoutes(NewHandler)),
)

var Worker = fx.Module("withdrawal.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.WithdrawalInitiate, svc.HandleInitiateTask)
	mux.HandleFunc(taskname.WithdrawalConfirm, svc.HandleConfirmTask)
	mux.HandleFunc(taskname.WithdrawalReconcile, svc.HandleReconcileTask)
	mux.HandleFunc(taskname.PayrollRun, svc.HandlePayrollTask)
}
