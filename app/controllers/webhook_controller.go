package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/consultix/consultix/internal/pkg/billing"
	"github.com/consultix/consultix/internal/pkg/env"
)

// HandlePaymentWebhook receives gateway postbacks. Authenticity comes first:
// the HMAC signature over the raw body must verify and, when an allow list is
// configured, the source address must be on it. Only then is the payload
// parsed and reconciled. Replays are acknowledged with 200 like first
// deliveries, so the gateway stops retrying.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	body := c.Body()

	secret := env.GetEnv("MANGOFY_WEBHOOK_SECRET", "")
	if !billing.VerifyWebhookSignature(body, c.Get("X-Webhook-Signature"), secret) {
		log.Warnf("[Webhook] rejected payment postback with bad signature from %s", ClientIP(c))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Invalid signature"})
	}

	allowList := billing.ParseAllowedSources(env.GetEnv("MANGOFY_ALLOWED_IPS", ""))
	if source := ClientIP(c); !billing.SourceAllowed(source, allowList) {
		log.Warnf("[Webhook] rejected payment postback from unlisted source %s", source)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Source not allowed"})
	}

	var payload billing.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	result, err := deps.Reconciler.ProcessWebhook(c.Context(), payload)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"invoice_uuid": result.InvoiceUUID,
		"status":       result.Status,
		"duplicate":    result.Duplicate,
	})
}
