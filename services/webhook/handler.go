package webhook

import (
	"io"
	"net/http"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	pipeline *Pipeline
}

func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

func (h *Handler) Register(g httpapi.Groups) {
	g.Root.POST("/webhook/:provider", h.postback)
	g.Root.GET("/webhook/:provider", h.postback)
}

func (h *Handler) postback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		_ = c.Error(errutil.BadRequest("failed to read body", err))
		return
	}

	res, err := h.pipeline.Process(c.Request.Context(), Request{
		Provider:    c.Param("provider"),
		Body:        body,
		ContentType: c.ContentType(),
		Query:       c.Request.URL.Query(),
		Header:      c.Request.Header,
		RemoteIP:    c.ClientIP(),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, res)
}
