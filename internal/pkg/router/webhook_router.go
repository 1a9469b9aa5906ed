package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consultix/consultix/app/controllers"
	"github.com/consultix/consultix/internal/pkg/constants"
)

// WebhookRouter exposes the gateway postback endpoint. No API key: callers
// authenticate with the HMAC signature and the source allow list.
type WebhookRouter struct {
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

func (h *WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.PaymentWebhookPath, controllers.HandlePaymentWebhook)
}
