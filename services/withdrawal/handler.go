package withdrawal

import (
	"io"
	"net/http"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "verif-hash"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g httpapi.Groups) {
	g.Root.POST("/payouts/webhook", h.providerWebhook)

	g.User.POST("/withdrawals", h.request)
	g.User.GET("/withdrawals/:tx_ref", h.get)
	g.User.POST("/subscriptions", h.subscribe)

	g.Admin.POST("/subscriptions/:tx_ref/confirm", h.confirmSubscription)
	g.Admin.POST("/withdrawals/reconcile", h.reconcile)
	g.Admin.GET("/payroll", h.listPayroll)
	g.Admin.POST("/payroll", h.createPayroll)
	g.Admin.POST("/payroll/run", h.runPayroll)
}

func (h *Handler) request(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid withdrawal request", err))
		return
	}
	req.UserID = middleware.UserID(c)

	t, err := h.svc.Request(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (h *Handler) get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), c.Param("tx_ref"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) subscribe(c *gin.Context) {
	var req SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid subscription request", err))
		return
	}

	t, err := h.svc.InitiateSubscription(c.Request.Context(), middleware.UserID(c), req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (h *Handler) providerWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read body", err))
		return
	}

	if _, err := h.svc.ApplyProviderStatus(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) confirmSubscription(c *gin.Context) {
	t, err := h.svc.ConfirmSubscription(c.Request.Context(), c.Param("tx_ref"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) reconcile(c *gin.Context) {
	n, err := h.svc.ReconcileStuck(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enqueued": n})
}

func (h *Handler) listPayroll(c *gin.Context) {
	entries, err := h.svc.ListPayrollEntries(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) createPayroll(c *gin.Context) {
	var req PayrollEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid payroll entry", err))
		return
	}

	entry, err := h.svc.CreatePayrollEntry(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) runPayroll(c *gin.Context) {
	n, err := h.svc.RunPayroll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": n})
}
