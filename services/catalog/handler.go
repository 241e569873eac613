package catalog

import (
	"net/http"

	"smallbiznis-rewards/pkg/errutil"
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
	g.Public.GET("/tasks", h.list)
	g.Admin.POST("/catalog/refresh", h.refresh)
	g.Admin.PUT("/tasks/:id/cap", h.setCap)
}

func (h *Handler) list(c *gin.Context) {
	tasks, err := h.svc.FetchActive(c.Request.Context(), c.Query("provider"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) refresh(c *gin.Context) {
	created, err := h.svc.Refresh(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "created": created})
}

type setCapRequest struct {
	AdminRewardCap *int64 `json:"admin_reward_cap" binding:"required"`
}

func (h *Handler) setCap(c *gin.Context) {
	var req setCapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	task, err := h.svc.SetRewardCap(c.Request.Context(), c.Param("id"), *req.AdminRewardCap)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, task)
}
