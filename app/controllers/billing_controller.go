package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consultix/consultix/internal/pkg/usercontext"
)

// HandleListPlans returns the plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := deps.Repo.ListPlans()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleGetSubscription returns the organization's subscription with its
// plan and purchased addons.
func HandleGetSubscription(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	sub, err := deps.Repo.SubscriptionByOrganization(rc.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	plan, err := deps.Repo.PlanByID(sub.PlanID)
	if err != nil {
		return respondError(c, err)
	}
	addons, err := deps.Repo.ListAddons(rc.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription": sub,
		"plan":         plan,
		"addons":       addons,
	})
}

type planRequest struct {
	PlanUUID string `json:"plan_uuid" validate:"required,uuid4"`
}

// HandleStartSubscription creates the organization's subscription.
func HandleStartSubscription(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	sub, err := deps.Service.StartSubscription(c.Context(), rc.OrganizationID, req.PlanUUID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleChangePlan switches the subscription's plan. Upgrades return the
// proration invoice to settle.
func HandleChangePlan(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	invoice, err := deps.Service.ChangePlan(c.Context(), rc.OrganizationID, req.PlanUUID)
	if err != nil {
		return respondError(c, err)
	}
	resp := fiber.Map{"changed": true}
	if invoice != nil {
		resp["invoice"] = invoice
	}
	return c.JSON(resp)
}

// HandleCancelSubscription ends the subscription immediately.
func HandleCancelSubscription(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	if err := deps.Service.CancelSubscription(c.Context(), rc.OrganizationID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type addonRequest struct {
	Type     string `json:"type" validate:"required,oneof=EXTRA_IP EXTRA_REQUESTS EARLY_IP_CHANGE"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10000"`
}

// HandlePurchaseAddon buys addon units and returns the invoice to settle.
func HandlePurchaseAddon(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireAdminOrOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	var req addonRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	addon, invoice, err := deps.Service.PurchaseAddon(c.Context(), rc.OrganizationID, req.Type, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"addon":   addon,
		"invoice": invoice,
	})
}

// HandleCancelAddon removes an addon purchase.
func HandleCancelAddon(c *fiber.Ctx) error {
	rc := usercontext.Get(c)
	if err := deps.Checker.RequireAdminOrOwner(rc.OrganizationID, rc.UserID); err != nil {
		return respondError(c, err)
	}

	if err := deps.Service.CancelAddon(c.Context(), rc.OrganizationID, c.Params("addonUUID")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListInvoices lists the organization's invoices.
func HandleListInvoices(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	invoices, err := deps.Repo.ListInvoices(rc.OrganizationID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

// HandlePaymentLink returns a payment URL for the earliest open invoice,
// creating the gateway charge on first call.
func HandlePaymentLink(c *fiber.Ctx) error {
	rc := usercontext.Get(c)

	payer, err := deps.Repo.UserByID(rc.UserID)
	if err != nil {
		return respondError(c, err)
	}

	invoice, err := deps.Service.PaymentLink(c.Context(), rc.OrganizationID, payer, ClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"invoice_uuid": invoice.UUID,
		"amount":       invoice.Amount,
		"due_date":     invoice.DueDate,
		"payment_url":  invoice.PaymentURL,
	})
}
