package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
)

// WebhookHandler receives Stripe webhook deliveries. Signature verification
// fails closed; everything after a verified event is the processor's job.
type WebhookHandler struct {
	processor     *usecase.WebhookProcessor
	webhookSecret string
	logger        *zap.Logger
}

func NewWebhookHandler(processor *usecase.WebhookProcessor, webhookSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:     processor,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(
		body,
		sig,
		h.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.logger.Error("Webhook signature verification failed",
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook signature verification failed",
		})
	}

	h.logger.Info("Webhook event received",
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)))

	if err := h.processor.ProcessEvent(c.Request().Context(), &event); err != nil {
		// 5xx makes Stripe redeliver; the idempotency claim keeps the
		// retry from double-processing anything that already committed.
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Event processing failed",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
