package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/consultix/consultix/app/controllers"
	"github.com/consultix/consultix/internal/pkg/authz"
	"github.com/consultix/consultix/internal/pkg/billing"
	"github.com/consultix/consultix/internal/pkg/cache"
	"github.com/consultix/consultix/internal/pkg/constants"
	"github.com/consultix/consultix/internal/pkg/database"
	"github.com/consultix/consultix/internal/pkg/entitlements"
	"github.com/consultix/consultix/internal/pkg/env"
	"github.com/consultix/consultix/internal/pkg/ledger"
	"github.com/consultix/consultix/internal/pkg/notifier"
	"github.com/consultix/consultix/internal/pkg/router"
	"github.com/consultix/consultix/internal/pkg/scheduler"
)

func main() {
	app, registry := NewApplication()
	registry.Start()
	defer registry.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *scheduler.Registry) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	loc := billingLocation()
	repo := ledger.NewRepository(database.GetDB())

	notif := notifier.NewDedupeNotifier(notifier.NewMulti(
		notifier.NewBarkNotifierFromEnv(repo),
		notifier.NewEmailNotifierFromEnv(repo),
	), cache.GetClient(), loc)
	meter := entitlements.NewMeter(loc)
	engine := billing.NewEngine(repo, loc)
	jobs := scheduler.NewJobs(repo, engine, notif, loc, scheduler.OverdueGraceDays())

	controllers.Setup(controllers.Deps{
		Repo:       repo,
		Evaluator:  entitlements.NewEvaluator(repo, meter, notif),
		Meter:      meter,
		Engine:     engine,
		Service:    billing.NewService(repo, engine, billing.NewGatewayFromEnv(), notif),
		Reconciler: billing.NewReconciler(repo, notif),
		Checker:    authz.NewChecker(repo),
		Jobs:       jobs,
	})

	registry, err := scheduler.NewRegistry(jobs, loc)
	if err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "consultix",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get(constants.MetricsPath, basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	router.InstallRouter(app, repo)

	return app, registry
}

// billingLocation loads BILLING_TIMEZONE, the default timezone for
// organizations that configured none.
func billingLocation() *time.Location {
	name := env.GetEnv("BILLING_TIMEZONE", "America/Sao_Paulo")
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("invalid BILLING_TIMEZONE %q, falling back to UTC: %v", name, err)
		return time.UTC
	}
	return loc
}
