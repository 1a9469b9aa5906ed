package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/usercontext"
)

// BillingGuard blocks mutating billing actions while the organization has an
// invoice sitting past its due date. Read paths and the payment endpoints
// themselves must not be behind this guard, otherwise nobody could ever pay.
// Must run after ResolveOrganization.
func BillingGuard(repo ledger.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		organizationID := usercontext.OrganizationID(c)
		if organizationID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing organization"})
		}

		blocked, err := repo.HasPendingInvoiceDueBefore(organizationID, time.Now())
		if err != nil {
			log.Errorf("billing guard lookup failed for org %d: %v", organizationID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Billing check failed"})
		}
		if blocked {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "billing_blocked",
				"message": "Organization has an overdue invoice. Settle it to continue.",
			})
		}
		return c.Next()
	}
}
