package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/interfaces/http/dto"
)

// WebhookReceiver accepts marketplace notifications
type WebhookReceiver interface {
	Receive(ctx context.Context, code string, body []byte, signature string) (*appsync.WebhookResult, error)
}

// WebhookHandler serves marketplace webhooks. Deliveries are verified and
// enqueued; no marketplace is called while the request is open.
type WebhookHandler struct {
	BaseHandler
	receiver    WebhookReceiver
	maxBodySize int64
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(receiver WebhookReceiver, maxBodySize int64) *WebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &WebhookHandler{receiver: receiver, maxBodySize: maxBodySize}
}

// Receive godoc
//
//	@ID				receiveWebhook
//	@Summary		Receive a marketplace webhook
//	@Description	Verifies the HMAC-SHA256 body signature, deduplicates events and enqueues import work
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			marketplace			path		string	true	"Marketplace code"	Enums(trendyol, hepsiburada, n11, amazon, ebay)
//	@Param			X-Webhook-Signature	header		string	false	"Hex HMAC-SHA256 of the raw body, optionally prefixed with sha256="
//	@Success		202					{object}	APIResponse[appsync.WebhookResult]
//	@Failure		400					{object}	ErrorResponse
//	@Failure		401					{object}	ErrorResponse
//	@Failure		404					{object}	ErrorResponse
//	@Failure		409					{object}	ErrorResponse
//	@Failure		413					{object}	ErrorResponse
//	@Failure		422					{object}	ErrorResponse
//	@Router			/webhooks/{marketplace} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, dto.ErrCodeTooLarge, "Webhook payload too large")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}

	result, err := h.receiver.Receive(c.Request.Context(), c.Param("marketplace"), body, c.GetHeader(appsync.SignatureHeader))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, result)
}
