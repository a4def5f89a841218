package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL          string
	EncryptionKey        string // hex-encoded 32-byte key for the credential vault
	PollInterval         int    // seconds
	MaxRetries           int
	ShutdownTimeout      int // seconds
	MaxConcurrentJobs    int
	SyncWorkers          int // per-job worker pool size
	ProviderClientID     string
	ProviderClientSecret string
	ProviderBaseURL      string
	ProviderTokenURL     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	providerClientID := os.Getenv("PROVIDER_CLIENT_ID")
	providerClientSecret := os.Getenv("PROVIDER_CLIENT_SECRET")
	if providerClientID == "" || providerClientSecret == "" {
		fmt.Println("Warning: PROVIDER_CLIENT_ID or PROVIDER_CLIENT_SECRET not set, provider API will not work")
	}

	providerBaseURL := os.Getenv("PROVIDER_BASE_URL")
	if providerBaseURL == "" {
		providerBaseURL = "https://api.tryfinch.com"
	}
	providerTokenURL := os.Getenv("PROVIDER_TOKEN_URL")
	if providerTokenURL == "" {
		providerTokenURL = "https://api.tryfinch.com/auth/token"
	}

	return &Config{
		DatabaseURL:          dbURL,
		EncryptionKey:        encryptionKey,
		PollInterval:         10, // poll every 10 seconds
		MaxRetries:           3,
		ShutdownTimeout:      30,
		MaxConcurrentJobs:    2,
		SyncWorkers:          4,
		ProviderClientID:     providerClientID,
		ProviderClientSecret: providerClientSecret,
		ProviderBaseURL:      providerBaseURL,
		ProviderTokenURL:     providerTokenURL,
	}, nil
}
