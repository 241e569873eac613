package audit

import (
	"net/http"

	"smallbiznis-rewards/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g httpapi.Groups) {
	g.Admin.POST("/ledger/audit", h.run)
}

func (h *Handler) run(c *gin.Context) {
	report, err := h.svc.Run(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
