package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/consultix/consultix/app/controllers"
	"github.com/consultix/consultix/internal/pkg/constants"
	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/middleware"
)

type ApiRouter struct {
	repo ledger.Repository
}

func NewApiRouter(repo ledger.Repository) *ApiRouter {
	return &ApiRouter{repo: repo}
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIBasePath, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuth(h.repo))
	v1.Get("/plans", controllers.HandleListPlans)

	org := v1.Group("/orgs/:orgSlug", middleware.ResolveOrganization(h.repo))

	// Metered access. The consume endpoint sits behind the billing guard so
	// an organization with overdue invoices loses service until it pays.
	org.Post("/consume", middleware.BillingGuard(h.repo), controllers.HandleConsume)
	org.Get("/usage", controllers.HandleGetUsage)

	// Authorized IPs.
	org.Get("/ips", controllers.HandleListIPs)
	org.Post("/ips", middleware.BillingGuard(h.repo), controllers.HandleAddIP)
	org.Put("/ips/:ipUUID", middleware.BillingGuard(h.repo), controllers.HandleChangeIP)
	org.Delete("/ips/:ipUUID", controllers.HandleRemoveIP)

	// Subscription and billing. Payment endpoints are reachable while
	// blocked, that is how the organization gets unblocked.
	org.Get("/subscription", controllers.HandleGetSubscription)
	org.Post("/subscription", controllers.HandleStartSubscription)
	org.Put("/subscription/plan", controllers.HandleChangePlan)
	org.Delete("/subscription", controllers.HandleCancelSubscription)

	org.Post("/addons", middleware.BillingGuard(h.repo), controllers.HandlePurchaseAddon)
	org.Delete("/addons/:addonUUID", controllers.HandleCancelAddon)

	org.Get("/invoices", controllers.HandleListInvoices)
	org.Post("/invoices/payment-link", controllers.HandlePaymentLink)

	// Operational job triggers, guarded by basic auth instead of API keys.
	admin := api.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "test"),
		},
	}))
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Post("/jobs/:job", controllers.HandleRunJob)
}
