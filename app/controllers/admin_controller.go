package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/consultix/consultix/internal/pkg/statistics"
)

// HandleAdminStats returns the cached platform counters.
func HandleAdminStats(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(statistics.GetStatistics())
}

// HandleRunJob triggers one of the scheduled maintenance jobs by hand.
// Useful for operations work when a run failed or cannot wait for the
// next cron tick.
func HandleRunJob(c *fiber.Ctx) error {
	job := c.Params("job")

	var err error
	switch job {
	case "expiry-sweep":
		err = deps.Jobs.RunExpirySweep(c.Context())
	case "monthly-invoices":
		err = deps.Jobs.RunMonthlyInvoiceGeneration(c.Context())
	case "usage-cleanup":
		err = deps.Jobs.RunUsageCleanup(c.Context())
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Unknown job: " + job,
		})
	}

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "job_failed",
			"message": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"job":    job,
		"status": "completed",
	})
}
