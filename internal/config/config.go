package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	PollInterval     int // seconds between worker ticks
	MaxAttempts      int // sync attempts before a job is marked failed
	StaleRunningMins int // minutes before a running job is reclaimed
	ShutdownTimeout  int // seconds
	MetricsAddr      string
	BankBaseURL      string
	BankTokenURL     string
	BankClientID     string
	BankClientSecret string
	BankAppKey       string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	bankClientID := os.Getenv("BANK_CLIENT_ID")
	bankClientSecret := os.Getenv("BANK_CLIENT_SECRET")
	if bankClientID == "" || bankClientSecret == "" {
		fmt.Println("Warning: BANK_CLIENT_ID or BANK_CLIENT_SECRET not set, bank status queries will not work")
	}

	return &Config{
		DatabaseURL:      dbURL,
		PollInterval:     intEnv("POLL_INTERVAL", 60),
		MaxAttempts:      intEnv("MAX_ATTEMPTS", 5),
		StaleRunningMins: intEnv("STALE_RUNNING_MINUTES", 60),
		ShutdownTimeout:  intEnv("SHUTDOWN_TIMEOUT", 30),
		MetricsAddr:      stringEnv("METRICS_ADDR", ":9191"),
		BankBaseURL:      stringEnv("BANK_BASE_URL", "https://api.bb.com.br/pagamentos-lote/v1"),
		BankTokenURL:     stringEnv("BANK_TOKEN_URL", "https://oauth.bb.com.br/oauth/token"),
		BankClientID:     bankClientID,
		BankClientSecret: bankClientSecret,
		BankAppKey:       os.Getenv("BANK_APP_KEY"),
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: invalid %s value %q, using default %d\n", key, v, fallback)
		return fallback
	}
	return n
}
