package referral

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
	g.User.POST("/referrals/link", h.link)
	g.User.GET("/me/referrals", h.listInvitees)
	g.Admin.POST("/referrals/repair", h.repair)
}

func (h *Handler) link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invite_code is required", err))
		return
	}

	inv, err := h.svc.Link(c.Request.Context(), middleware.UserID(c), req.InviteCode)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invite": inv})
}

func (h *Handler) listInvitees(c *gin.Context) {
	invites, err := h.svc.ListInvitees(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (h *Handler) repair(c *gin.Context) {
	n, err := h.svc.RepairMissingInvites(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": n})
}
