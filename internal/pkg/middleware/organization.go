package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/usercontext"
)

// ResolveOrganization loads the :orgSlug route parameter, verifies the
// authenticated user is a member, and stores both on the request context.
// Must run after APIKeyAuth.
func ResolveOrganization(repo ledger.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := usercontext.Get(c)
		if !rc.Authenticated {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
		}

		slug := c.Params("orgSlug")
		if slug == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing organization"})
		}

		org, err := repo.OrganizationBySlug(slug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Organization not found"})
			}
			log.Errorf("organization lookup failed for %s: %v", slug, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Organization lookup failed"})
		}

		role, err := repo.MemberRole(org.ID, rc.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Not a member of this organization"})
			}
			log.Errorf("membership lookup failed for org %d user %d: %v", org.ID, rc.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Membership lookup failed"})
		}

		rc.OrganizationID = org.ID
		rc.OrganizationSlug = org.Slug
		rc.Role = role
		usercontext.Set(c, rc)
		return c.Next()
	}
}
