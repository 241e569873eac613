package provider

import (
	"net/http"

	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) Register(g httpapi.Groups) {
	g.User.GET("/providers/:provider/redirect", h.redirect)
}

func (h *Handler) redirect(c *gin.Context) {
	name := c.Param("provider")
	u, err := h.registry.BuildRedirectURL(name, middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": name, "url": u})
}
