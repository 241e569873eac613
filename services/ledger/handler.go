package ledger

import (
	"net/http"

	"smallbiznis-rewards/pkg/db/pagination"
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
	g.User.GET("/me/balance", h.balance)
	g.User.GET("/me/ledger", h.entries)
	g.Admin.GET("/ledger/:user_id/verify", h.verify)
}

func (h *Handler) balance(c *gin.Context) {
	userID := middleware.UserID(c)
	balance, err := h.svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func (h *Handler) entries(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	res, err := h.svc.ListEntries(c.Request.Context(), middleware.UserID(c), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) verify(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("user_id")

	chain, err := h.svc.VerifyChain(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rec, err := h.svc.Reconcile(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chain": chain, "reconcile": rec})
}
