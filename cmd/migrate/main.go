package main

import (
	"fmt"
	"log"
	"os"

	"github.com/consultix/consultix/app/models"
	"github.com/consultix/consultix/internal/pkg/database"
	"github.com/consultix/consultix/internal/pkg/env"
)

// Schema management runs through GORM automigrate, the schema is derived
// from the model structs. This tool applies it without booting the server.
func main() {
	env.SetupEnvFile()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		// SetupDatabase automigrates all models and seeds the plan catalog.
		database.SetupDatabase()
		log.Println("Schema migrated and default plans seeded")

	case "seed":
		database.SetupDatabase()
		if err := models.SeedDefaultPlans(database.GetDB()); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Default plans seeded")

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Available commands:")
	fmt.Println("  up   - Migrate the schema and seed the plan catalog (default)")
	fmt.Println("  seed - Re-run the plan catalog seeding only")
}
