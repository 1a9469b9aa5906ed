package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consultix/consultix/internal/pkg/usercontext"
)

type consumeRequest struct {
	Category string `json:"category" validate:"omitempty,max=50"`
}

// HandleConsume spends one metered request for the organization. The quota
// check and the usage record commit atomically; a denial reports why and
// what the current ceiling is.
func HandleConsume(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	var req consumeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
		}
		if err := validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
		}
	}

	decision, err := deps.Evaluator.ConsumeRequest(c.Context(), rc.OrganizationID, req.Category)
	if err != nil {
		return respondError(c, err)
	}
	if !decision.Allowed {
		return respondDenied(c, decision)
	}
	return c.JSON(fiber.Map{
		"allowed": true,
		"used":    decision.Current,
		"limit":   decision.Limit,
	})
}

// HandleGetUsage reports consumption in the current billing window.
func HandleGetUsage(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	used, limit, err := deps.Evaluator.RequestUsage(rc.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	remaining := int64(limit) - used
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(fiber.Map{
		"used":      used,
		"limit":     limit,
		"remaining": remaining,
	})
}

type ipRequest struct {
	Address string `json:"address" validate:"required,ip"`
	Name    string `json:"name" validate:"omitempty,max=100"`
}

// HandleListIPs lists the organization's authorized addresses.
func HandleListIPs(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	ips, err := deps.Repo.ListIPs(rc.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ips": ips})
}

// HandleAddIP authorizes a new address when a slot is free.
func HandleAddIP(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireAdminOrOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	var req ipRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	decision, ip, err := deps.Evaluator.AddIP(c.Context(), rc.OrganizationID, req.Address, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	if !decision.Allowed {
		return respondDenied(c, decision)
	}
	return c.Status(fiber.StatusCreated).JSON(ip)
}

// HandleChangeIP rewrites an authorized address, subject to the cooldown.
func HandleChangeIP(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireAdminOrOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	var req ipRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	decision, ip, err := deps.Evaluator.ChangeIP(c.Context(), rc.OrganizationID, c.Params("ipUUID"), req.Address, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	if !decision.Allowed {
		return respondDenied(c, decision)
	}
	return c.JSON(ip)
}

// HandleRemoveIP deletes an authorized address.
func HandleRemoveIP(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireAdminOrOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	decision, err := deps.Evaluator.RemoveIP(c.Context(), rc.OrganizationID, c.Params("ipUUID"))
	if err != nil {
		return respondError(c, err)
	}
	if !decision.Allowed {
		return respondDenied(c, decision)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
