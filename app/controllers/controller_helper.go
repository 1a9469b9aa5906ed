package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/go-playground/validator/v10"

	"github.com/consultix/consultix/internal/pkg/apperrors"
	"github.com/consultix/consultix/internal/pkg/entitlements"
)

var validate = validator.New()

// respondError maps application errors onto the JSON error envelope.
func respondError(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal_server_error", "message": "Something went wrong"})
	}
	return c.Status(status).JSON(fiber.Map{"error": errorCode(status), "message": err.Error()})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusBadGateway:
		return "upstream_error"
	default:
		return "error"
	}
}

// respondDenied maps an entitlement denial onto an HTTP status. Denials are
// outcomes, not errors; the body always carries the structured reason.
func respondDenied(c *fiber.Ctx, d entitlements.Decision) error {
	status := fiber.StatusForbidden
	switch d.Reason {
	case entitlements.DenyQuotaExceeded:
		status = fiber.StatusTooManyRequests
	case entitlements.DenyIPLimitExceeded, entitlements.DenyCooldownActive, entitlements.DenyFloorViolation:
		status = fiber.StatusConflict
	}
	body := fiber.Map{
		"allowed": false,
		"reason":  string(d.Reason),
		"message": d.Message,
	}
	if d.Limit > 0 {
		body["current"] = d.Current
		body["limit"] = d.Limit
	}
	if d.RetryAt != nil {
		body["retry_at"] = d.RetryAt
	}
	return c.Status(status).JSON(body)
}

// ClientIP resolves the calling address behind Cloudflare or a standard
// proxy chain, falling back to the socket address.
func ClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return c.IP()
}
