package usercontext

import "github.com/gofiber/fiber/v2"

// Shared Locals keys used across controllers and middlewares.
const (
	KeyRequestContext = "REQUEST_CONTEXT"
	KeyOrganizationID = "organization_id"
)

// RequestContext carries the authenticated caller and, once resolved, the
// organization the request acts on.
type RequestContext struct {
	UserID           uint   `json:"user_id"`
	UserName         string `json:"user_name"`
	OrganizationID   uint   `json:"organization_id"`
	OrganizationSlug string `json:"organization_slug"`
	Role             string `json:"role"`
	Authenticated    bool   `json:"authenticated"`
}

// Get retrieves the request context, or an anonymous one if none was set.
func Get(c *fiber.Ctx) RequestContext {
	if ctx := c.Locals(KeyRequestContext); ctx != nil {
		if rc, ok := ctx.(RequestContext); ok {
			return rc
		}
	}
	return RequestContext{}
}

// Set stores the request context for downstream handlers.
func Set(c *fiber.Ctx, rc RequestContext) {
	c.Locals(KeyRequestContext, rc)
	c.Locals(KeyOrganizationID, rc.OrganizationID)
}

// UserID returns the authenticated user's ID, or 0.
func UserID(c *fiber.Ctx) uint {
	return Get(c).UserID
}

// OrganizationID returns the resolved organization's ID, or 0.
func OrganizationID(c *fiber.Ctx) uint {
	return Get(c).OrganizationID
}
