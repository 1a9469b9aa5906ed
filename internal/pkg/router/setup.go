package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consultix/consultix/internal/pkg/ledger"
)

// Router installs a group of routes onto the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires every route group. The webhook router goes first: it
// must stay outside the API key middleware, the gateway authenticates with a
// signature instead.
func InstallRouter(app *fiber.App, repo ledger.Repository) {
	setup(app, NewWebhookRouter(), NewApiRouter(repo))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
