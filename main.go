package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"invoices/cmd"
	"invoices/internal/config"
	"invoices/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Commands that need the configuration report the error themselves
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting Invoices CLI")

	cmd.Execute()

	log.Debug().Msg("Invoices CLI shutdown")
	os.Exit(0)
}
