package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	ChunkSizeDays      int           // size of one sync window
	ChunkDelay         time.Duration // pause between chunk round-trips
	FetchTimeout       time.Duration // upper bound on a single provider call
	RetentionDays      int           // terminal jobs older than this get deleted
	PollInterval       int           // seconds, watcher tick
	StaleJobThreshold  time.Duration // running jobs untouched this long are presumed crashed
	ShutdownTimeout    int           // seconds
	GarminClientID     string
	GarminClientSecret string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	garminClientID := os.Getenv("GARMIN_CLIENT_ID")
	garminClientSecret := os.Getenv("GARMIN_CLIENT_SECRET")
	if garminClientID == "" || garminClientSecret == "" {
		fmt.Println("Warning: GARMIN_CLIENT_ID or GARMIN_CLIENT_SECRET not set, Garmin API will not work")
	}

	return &Config{
		DatabaseURL:        dbURL,
		ChunkSizeDays:      7,
		ChunkDelay:         2 * time.Second,
		FetchTimeout:       5 * time.Minute,
		RetentionDays:      30,
		PollInterval:       60, // poll every 60 seconds
		StaleJobThreshold:  15 * time.Minute,
		ShutdownTimeout:    30,
		GarminClientID:     garminClientID,
		GarminClientSecret: garminClientSecret,
	}, nil
}
