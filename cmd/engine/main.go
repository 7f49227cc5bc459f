package main

import (
	"log"
	"os"

	"github.com/rawblock/washtrade-engine/internal/api"
	"github.com/rawblock/washtrade-engine/internal/arkham"
	"github.com/rawblock/washtrade-engine/internal/db"
)

func main() {
	log.Println("Starting Wash-Trade Detection Engine (Microservice: token-washtrade-analytics)...")

	// ─── Environment Variables ──────────────────────────────────────────
	// Credentials come from environment variables only. Use a .env file
	// for local development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		conn, err := db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting analysis runs. Error: %v", err)
		} else {
			dbConn = conn
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set, analysis runs will not be persisted")
	}

	// The provider client is optional: deployments that only push
	// transfer snapshots through POST /analyze don't need an API key.
	var provider *arkham.Client
	if apiKey := os.Getenv("ARKHAM_API_KEY"); apiKey != "" {
		client, err := arkham.NewClient(arkham.Config{
			APIKey:  apiKey,
			BaseURL: getEnvOrDefault("ARKHAM_BASE_URL", ""),
		})
		if err != nil {
			log.Printf("Warning: provider client unavailable: %v", err)
		} else {
			provider = client
			log.Println("Arkham transfer provider client configured")
		}
	} else {
		log.Println("ARKHAM_API_KEY not set, POST /collect is disabled")
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Setup the Gin Router
	r := api.SetupRouter(dbConn, provider, wsHub)

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: token-washtrade-analytics)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
