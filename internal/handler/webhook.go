package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"walletpulse/internal/webhook"
)

// maxWebhookBody caps webhook payloads at 4 MiB. Provider batches stay far
// below this; anything larger is not a swap notification.
const maxWebhookBody = 4 << 20

// WebhookHandler accepts provider swap notifications. The body is handed to
// the dispatcher and the request acknowledged immediately, so the provider's
// delivery timeout never depends on database or price-source latency.
type WebhookHandler struct {
	Dispatcher *webhook.Dispatcher
}

func (h *WebhookHandler) Register(r *gin.Engine) {
	r.POST("/webhook", h.receive)
	r.POST("/webhook/raw", h.receive)
}

// @Summary Receive swap webhook
// @Tags webhook
// @Accept json
// @Success 200 {object} map[string]any
// @Router /webhook [post]
func (h *WebhookHandler) receive(c *gin.Context) {
	start := time.Now()
	if h.Dispatcher == nil {
		Error(c, http.StatusInternalServerError, "dispatcher unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		Error(c, http.StatusBadRequest, "read body failed", nil)
		return
	}
	accepted := h.Dispatcher.Submit(body)
	c.JSON(http.StatusOK, gin.H{
		"success":        accepted,
		"message":        "received",
		"responseTimeMs": time.Since(start).Milliseconds(),
	})
}
