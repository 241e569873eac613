package account

import (
	"net/http"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g httpapi.Groups) {
	g.User.POST("/accounts", h.ensure)
	g.User.GET("/me", h.me)
	g.User.PUT("/me/pin", h.setPIN)
}

func (h *Handler) ensure(c *gin.Context) {
	acc, err := h.svc.Ensure(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) me(c *gin.Context) {
	acc, err := h.svc.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

type setPINRequest struct {
	PIN string `json:"pin" binding:"required"`
}

func (h *Handler) setPIN(c *gin.Context) {
	var req setPINRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := h.svc.SetPIN(c.Request.Context(), middleware.UserID(c), req.PIN); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
